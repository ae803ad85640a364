package middleware

import (
	"strings"
	"testing"
)

func TestMatchSubdomain(t *testing.T) {
	tests := []struct {
		domain, pattern string
		want            bool
	}{
		{"http://api.foo.bar.com", "http://*.bar.com", true},
		{"http://a.b.c", "http://*.c", true},
		{"http://b.com", "http://*.b.com", false},
		{"https://a.b.com", "http://*.b.com", false},
		{"a.b.com", "http://*.b.com", false},
		{"http://a.b.com", "*.b.com", false},
		{"http://" + strings.Repeat("a", 254), "http://*.example.com", false},
	}
	for _, tt := range tests {
		if got := matchSubdomain(tt.domain, tt.pattern); got != tt.want {
			t.Errorf("matchSubdomain(%q, %q) = %v, want %v", tt.domain, tt.pattern, got, tt.want)
		}
	}
}
