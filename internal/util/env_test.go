package util

import (
	"os"
	"testing"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"OFF", true, false},
		{" true ", false, true},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tc := range tests {
		os.Setenv("COACHPIPE_TEST_BOOL", tc.value)
		if got := ParseBoolEnv("COACHPIPE_TEST_BOOL", tc.defaultValue); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.defaultValue, got, tc.want)
		}
	}
	os.Unsetenv("COACHPIPE_TEST_BOOL")

	if !ParseBoolEnv("COACHPIPE_TEST_BOOL", true) {
		t.Error("unset variable should return the default")
	}
}
