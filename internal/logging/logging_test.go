package logging

import "testing"

func TestHasFmtVerb(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"plain message", false},
		{"value is %d", true},
		{"loaded %s from %s", true},
		{"100%% done", false},
		{"trailing percent %", false},
		{"", false},
		{"%v", true},
	}
	for _, c := range cases {
		if got := hasFmtVerb(c.in); got != c.want {
			t.Errorf("hasFmtVerb(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"DEBUG", LevelDebug},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

// Structured key/value args must reach the logger untouched; only messages
// with format verbs go through sprintf.
func TestStructuredCallsDoNotPanic(t *testing.T) {
	Init(nil)
	L_debug("session state", "tenant", "seller-1", "status", "connected")
	L_debug("attempt %d of %d", 1, 3)
	L_debug("plain")
}
