// Package phone normalizes user-typed phone numbers into E.164 form.
package phone

import (
	"regexp"
	"strings"
)

var (
	separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	e164       = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
)

// Normalize converts a phone-like string to E.164. Ten bare digits are treated as
// a North American number. The boolean is false when the input cannot be a phone.
func Normalize(raw string) (string, bool) {
	s := separators.Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "whatsapp:")
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		if len(s) == 10 {
			s = "+1" + s
		} else {
			s = "+" + s
		}
	}
	if !e164.MatchString(s) {
		return "", false
	}
	return s, true
}

// Valid reports whether raw normalizes to an E.164 number.
func Valid(raw string) bool {
	_, ok := Normalize(raw)
	return ok
}
