// Package phone normalizes rider phone numbers to E.164 at the
// boundary, for a Kenyan-market mobile-money deployment (country code
// +254).
package phone

import (
	"regexp"
	"strings"
)

var digitsOnly = regexp.MustCompile(`[^0-9+]`)

// Normalize converts a loosely-formatted Kenyan mobile number (07XXXXXXXX,
// 7XXXXXXXX, 2547XXXXXXXX, +2547XXXXXXXX) into canonical E.164
// (+2547XXXXXXXX / +2541XXXXXXXX). It returns ok=false for anything that
// doesn't reduce to a 9-digit Safaricom/Airtel-style subscriber number.
func Normalize(raw string) (e164 string, ok bool) {
	s := digitsOnly.ReplaceAllString(strings.TrimSpace(raw), "")

	switch {
	case strings.HasPrefix(s, "+254") && len(s) == 13:
		s = s[1:]
	case strings.HasPrefix(s, "254") && len(s) == 12:
		// already bare international form
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "254" + s[1:]
	case len(s) == 9 && (s[0] == '7' || s[0] == '1'):
		s = "254" + s
	default:
		return "", false
	}

	if s[0] != '2' || len(s) != 12 {
		return "", false
	}

	return "+" + s, true
}

// MustNormalize is a test/fixture helper; it panics on invalid input.
func MustNormalize(raw string) string {
	e164, ok := Normalize(raw)
	if !ok {
		panic("phone: invalid number " + raw)
	}

	return e164
}

// Tail returns the last n digits of an already-normalized number, for
// masked logging.
func Tail(e164 string, n int) string {
	if len(e164) <= n {
		return e164
	}

	return e164[len(e164)-n:]
}
