package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// Tree hierarchy symbols using box drawing characters
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeVertical   = "│"

	TreeContinue = "│   " // parent has more siblings
	TreeIndent   = "    " // parent was last

	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxVertical    = "│"
	BoxHorizontal  = "─"
	BoxTeeRight    = "├"
	BoxTeeLeft     = "┤"
)

// TreePrefixBuilder helps build consistent tree prefixes based on hierarchy depth and position
type TreePrefixBuilder struct{}

// BuildPrefix generates a tree prefix based on depth, position, and parent positions
func (TreePrefixBuilder) BuildPrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth == 0 {
		return ""
	}

	var prefix string
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			prefix += TreeIndent
		} else {
			prefix += TreeContinue
		}
	}

	if isLast {
		prefix += TreeLastBranch
	} else {
		prefix += TreeBranch
	}
	return prefix
}

func BuildTreePrefix(depth int, isLast bool, parentIsLast []bool) string {
	builder := TreePrefixBuilder{}
	return builder.BuildPrefix(depth, isLast, parentIsLast)
}

// BuildBoxHeader creates a box header with the given title and width
func BuildBoxHeader(title string, width int) string {
	titleLen := utf8.RuneCountInString(title)
	if width < titleLen+4 {
		width = titleLen + 4
	}
	padding := width - 4 - titleLen

	header := BoxTopLeft + repeatString(BoxHorizontal, width-2) + BoxTopRight + "\n"
	header += BoxVertical + " " + title + repeatString(" ", padding+1) + BoxVertical + "\n"
	header += BoxTeeRight + repeatString(BoxHorizontal, width-2) + BoxTeeLeft + "\n"
	return header
}

// BuildBoxFooter creates a box footer with the given width
func BuildBoxFooter(width int) string {
	return BoxBottomLeft + repeatString(BoxHorizontal, width-2) + BoxBottomRight + "\n"
}

// BuildBoxLine creates a content line within a box, truncating by runes.
func BuildBoxLine(content string, width int) string {
	contentLen := utf8.RuneCountInString(content)
	maxContentLen := width - 4

	if contentLen > maxContentLen {
		runes := []rune(content)
		content = string(runes[:maxContentLen-3]) + "..."
		contentLen = maxContentLen
	}

	padding := maxContentLen - contentLen
	return BoxVertical + " " + content + repeatString(" ", padding+1) + BoxVertical + "\n"
}

// Badge renders label as a tag badge on a hex background. Without color the
// label is bracketed instead.
func Badge(label, hex string, color bool) string {
	if !color {
		return "[" + label + "]"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ffffff")).
		Background(lipgloss.Color(hex)).
		Padding(0, 1).
		Render(label)
}

// Badges renders every label with Badge, space separated.
func Badges(labels []string, colorOf func(string) string, color bool) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, Badge(l, colorOf(l), color))
	}
	return strings.Join(parts, " ")
}

func repeatString(s string, n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(s, n)
}
