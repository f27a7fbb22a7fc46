package endpoint

import (
	"fmt"
	"strings"
)

// Prefix is prepended to the endpoint authority before it is merged into a
// request, e.g. "tenant123." turns service.example.com into
// tenant123.service.example.com.
type Prefix string

// NewPrefix validates s as a host prefix.
func NewPrefix(s string) (Prefix, error) {
	if err := validatePrefix(s); err != nil {
		return "", err
	}
	return Prefix(s), nil
}

func (p Prefix) String() string { return string(p) }

// ExpandPrefix fills {Label} placeholders in template from labels. Every
// substituted value must be a valid host label.
func ExpandPrefix(template string, labels map[string]string) (Prefix, error) {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("endpoint prefix template %q: unterminated label", template)
		}
		b.WriteString(rest[:open])
		name := rest[open+1 : open+end]
		v, ok := labels[name]
		if !ok {
			return "", fmt.Errorf("endpoint prefix template %q: no value for label %q", template, name)
		}
		if !ValidHostLabel(v) {
			return "", fmt.Errorf("endpoint prefix template %q: label %q value %q is not a valid host label", template, name, v)
		}
		b.WriteString(v)
		rest = rest[open+end+1:]
	}
	return NewPrefix(b.String())
}

func validatePrefix(s string) error {
	if s == "" {
		return fmt.Errorf("endpoint prefix is empty")
	}
	for i := 0; i < len(s); i++ {
		if !isHostChar(s[i]) {
			return fmt.Errorf("endpoint prefix %q: invalid character %q", s, s[i])
		}
	}
	if s[0] == '.' || strings.Contains(s, "..") {
		return fmt.Errorf("endpoint prefix %q: empty host label", s)
	}
	return nil
}

// ValidHostLabel reports whether s is a single DNS label: letters, digits and
// inner hyphens, at most 63 bytes.
func ValidHostLabel(s string) bool {
	if s == "" || len(s) > 63 || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || !isHostChar(s[i]) {
			return false
		}
	}
	return true
}

func isHostChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '.'
}
