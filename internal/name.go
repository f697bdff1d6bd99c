package internal

import (
	"fmt"
	"strings"
)

// StructName returns the type name of v without the pointer marker, or v.String() for fmt.Stringer.
// It's used to describe channels and handlers in logs.
func StructName(v interface{}) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}

	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
