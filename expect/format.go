package expect

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/net/html"

	"github.com/ethereum-optimism/infra/op-harness/dom"
)

// Format renders a value for assertion messages.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", x)
	case error:
		return fmt.Sprintf("error(%q)", x.Error())
	case *html.Node:
		return dom.Describe(x)
	case []*html.Node:
		parts := make([]string, 0, len(x))
		for _, n := range x {
			parts = append(parts, dom.Describe(n))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Type:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func {
		return "func " + rv.Type().String()
	}
	return fmt.Sprintf("%v", v)
}
