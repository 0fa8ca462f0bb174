package messaging

import (
	"errors"
	"testing"

	"github.com/gymbrocolombia/gymbot/internal/models"
)

func TestCanonicalizeRecipient(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"573001112233", "573001112233"},
		{"+57 300 111 2233", "573001112233"},
		{"(57) 300-111-2233", "573001112233"},
		{"whatsapp:+573001112233", "573001112233"},
	}
	for _, c := range cases {
		got, err := canonicalizeRecipient(c.in)
		if err != nil {
			t.Errorf("canonicalizeRecipient(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("canonicalizeRecipient(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCanonicalizeRecipient_Errors(t *testing.T) {
	if _, err := canonicalizeRecipient(""); !errors.Is(err, models.ErrEmptyRecipient) {
		t.Errorf("empty recipient error = %v", err)
	}
	for _, in := range []string{"abc", "+", "12345", "1-2-3"} {
		_, err := canonicalizeRecipient(in)
		if !errors.Is(err, models.ErrInvalidRecipient) {
			t.Errorf("canonicalizeRecipient(%q) error = %v, want ErrInvalidRecipient", in, err)
		}
	}
}
