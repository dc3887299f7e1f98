package expect

func (c *Chain) ToBe(expected any) bool { return c.To(MatcherBe, expected) }

func (c *Chain) ToEqual(expected any) bool { return c.To(MatcherEqual, expected) }

func (c *Chain) ToBeTruthy() bool { return c.To(MatcherTruthy) }

func (c *Chain) ToBeWithin(min, max any) bool { return c.To(MatcherWithin, min, max) }

func (c *Chain) ToBeGreaterThan(bound any) bool { return c.To(MatcherGreaterThan, bound) }

func (c *Chain) ToBeLessThan(bound any) bool { return c.To(MatcherLessThan, bound) }

// ToBeOfType checks the type category, one of nil, boolean, number, integer,
// string, function, slice, map, struct, pointer, channel or error.
func (c *Chain) ToBeOfType(category string) bool { return c.To(MatcherOfType, category) }

// ToHaveCount checks the number of elements matching the actual selector.
// Without an argument at least one element must match.
func (c *Chain) ToHaveCount(n ...any) bool { return c.To(MatcherCount, n...) }

func (c *Chain) ToBeVisible() bool { return c.To(MatcherVisible) }

// ToHaveAttribute takes the attribute name and an optional string or regexp value.
func (c *Chain) ToHaveAttribute(name string, value ...any) bool {
	return c.To(MatcherAttribute, append([]any{name}, value...)...)
}

// ToHaveClass accepts a space separated string or a list of class names. All must be present.
func (c *Chain) ToHaveClass(classes any) bool { return c.To(MatcherClass, classes) }

func (c *Chain) ToMatch(pattern any) bool { return c.To(MatcherMatch, pattern) }

func (c *Chain) ToThrow(matcher ...any) bool { return c.To(MatcherThrow, matcher...) }

// ToVerifySteps compares the actual list with the steps recorded so far and
// clears them.
func (c *Chain) ToVerifySteps() bool { return c.To(MatcherVerifySteps) }
