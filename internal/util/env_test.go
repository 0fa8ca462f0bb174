package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"", true, true},
		{"maybe", false, false},
		{"maybe", true, true},
	}
	for _, c := range cases {
		t.Setenv("GYMBOT_TEST_BOOL", c.value)
		if got := ParseBoolEnv("GYMBOT_TEST_BOOL", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("GYMBOT_TEST_INT", "42")
	if got := ParseIntEnv("GYMBOT_TEST_INT", 7); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	t.Setenv("GYMBOT_TEST_INT", " 13 ")
	if got := ParseIntEnv("GYMBOT_TEST_INT", 7); got != 13 {
		t.Errorf("got %d, want 13", got)
	}
	t.Setenv("GYMBOT_TEST_INT", "not-a-number")
	if got := ParseIntEnv("GYMBOT_TEST_INT", 7); got != 7 {
		t.Errorf("got %d, want default 7", got)
	}
	t.Setenv("GYMBOT_TEST_INT", "")
	if got := ParseIntEnv("GYMBOT_TEST_INT", 7); got != 7 {
		t.Errorf("got %d, want default 7", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("GYMBOT_TEST_DUR", "5m")
	if got := ParseDurationEnv("GYMBOT_TEST_DUR", time.Minute); got != 5*time.Minute {
		t.Errorf("got %v, want 5m", got)
	}
	t.Setenv("GYMBOT_TEST_DUR", "48h")
	if got := ParseDurationEnv("GYMBOT_TEST_DUR", time.Minute); got != 48*time.Hour {
		t.Errorf("got %v, want 48h", got)
	}
	t.Setenv("GYMBOT_TEST_DUR", "soon")
	if got := ParseDurationEnv("GYMBOT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("got %v, want default", got)
	}
}
