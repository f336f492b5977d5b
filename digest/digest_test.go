package digest

import (
	"strings"
	"testing"
)

func TestHex(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", Empty},
		{"abc", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"hello world", "hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := String(tt.in); got != tt.want {
				t.Fatalf("unexpected digest %s", got)
			}
		})
	}
}

func TestHexShape(t *testing.T) {
	for _, in := range []string{"", "a", strings.Repeat("x", 1000)} {
		h := String(in)
		if len(h) != Size || !Valid(h) {
			t.Fatalf("unexpected digest shape %q", h)
		}
	}
}

func TestHexAvalanche(t *testing.T) {
	if String("document v1") == String("document v2") {
		t.Fatalf("unexpected collision")
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{Empty, true},
		{strings.ToUpper(Empty), false},
		{Empty[:63], false},
		{Empty[:63] + "g", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Valid(tt.in); got != tt.want {
			t.Fatalf("Valid(%q) = %v", tt.in, got)
		}
	}
}
