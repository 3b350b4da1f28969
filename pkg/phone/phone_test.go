package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_AcceptedFormats(t *testing.T) {
	cases := map[string]string{
		"0712345678":     "+254712345678",
		"0112345678":     "+254112345678",
		"712345678":      "+254712345678",
		"254712345678":   "+254712345678",
		"+254712345678":  "+254712345678",
		" +254712345678": "+254712345678",
		"+254 712 345 678": "+254712345678",
	}

	for raw, want := range cases {
		got, ok := Normalize(raw)
		assert.True(t, ok, "expected %q to normalize", raw)
		assert.Equal(t, want, got)
	}
}

func TestNormalize_RejectsInvalid(t *testing.T) {
	invalid := []string{
		"",
		"12345",
		"812345678",      // bare 9-digit form must start with 7 or 1
		"+1234567890123", // wrong country code, wrong length
		"25471234567",    // one digit short of a full subscriber number
	}

	for _, raw := range invalid {
		_, ok := Normalize(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestMustNormalize_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { MustNormalize("not-a-phone") })
	assert.NotPanics(t, func() { MustNormalize("0712345678") })
}

func TestTail(t *testing.T) {
	assert.Equal(t, "5678", Tail("+254712345678", 4))
	assert.Equal(t, "+254712345678", Tail("+254712345678", 50))
}
