package logger

import (
	"errors"
	"strings"
	"testing"
)

func TestMaskEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		email string
		want  string
	}{
		{name: "regular address", email: "alice@example.com", want: "a****@example.com"},
		{name: "single character local part", email: "b@example.com", want: "b****@example.com"},
		{name: "surrounding whitespace", email: "  carol@example.org ", want: "c****@example.org"},
		{name: "empty", email: "", want: ""},
		{name: "no at sign", email: "not-an-address", want: "***"},
		{name: "leading at sign", email: "@example.com", want: "***"},
		{name: "multibyte first rune", email: "élodie@example.fr", want: "é****@example.fr"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MaskEmail(tt.email); got != tt.want {
				t.Errorf("MaskEmail(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	if got := SanitizeString("line1\nline2\x00", 100); got != "line1line2" {
		t.Errorf("control characters not removed: %q", got)
	}

	long := strings.Repeat("x", 20)
	if got := SanitizeString(long, 10); got != strings.Repeat("x", 10)+"..." {
		t.Errorf("truncation failed: %q", got)
	}

	if got := SanitizeError(errors.New("boom\r\n")); got != "boom" {
		t.Errorf("SanitizeError = %q", got)
	}
	if SanitizeError(nil) != "" {
		t.Error("SanitizeError(nil) should be empty")
	}
}
