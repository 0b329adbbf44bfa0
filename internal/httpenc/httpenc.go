// Package httpenc encodes query parameter values for outbound subquery URLs.
package httpenc

import (
	"fmt"
	"strings"
)

// safe reports whether b may appear unescaped in an encoded value, per the
// allowlist A-Z a-z 0-9 - . _ ~ , * ( ) !
func safe(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	}
	switch b {
	case '-', '.', '_', '~', ',', '*', '(', ')', '!':
		return true
	}
	return false
}

// Encode percent-encodes value, preserving allowlisted bytes, and returns it
// as UTF-8 bytes for everything else.
func Encode(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if safe(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// Param renders name=encoded(value). An empty value renders as name=.
func Param(name, value string) string {
	return name + "=" + Encode(value)
}

// Query joins a slice of already-encoded name=value pairs with "&".
func Query(params ...string) string {
	return strings.Join(params, "&")
}
