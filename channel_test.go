package cometd

import (
	"testing"
)

func TestType(t *testing.T) {
	tests := []struct {
		name  string
		input Channel
		want  ChannelType
	}{
		{"valid meta channel", "/meta/connect", MetaChannel},
		{"invalid meta channel", "meta/connect", BroadcastChannel},
		{"valid service channel", "/service/chat", ServiceChannel},
		{"broadcast channel", "/foo/bar", BroadcastChannel},
	}

	for _, testCase := range tests {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			got := tc.input.Type()
			if tc.want != got {
				t.Errorf("unexpected channel type got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestWildcards(t *testing.T) {
	tests := []struct {
		name     string
		input    Channel
		wild     bool
		deepWild bool
	}{
		{"no wildcard", "/meta/connect", false, false},
		{"single wildcard", "/foo/*", true, false},
		{"double wildcard", "/foo/**", false, true},
		{"wildcard not last", "/foo/**/biz", false, false},
	}

	for _, testCase := range tests {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.input.IsWild(); got != tc.wild {
				t.Errorf("expected IsWild() = %v, got %v", tc.wild, got)
			}
			if got := tc.input.IsDeepWild(); got != tc.deepWild {
				t.Errorf("expected IsDeepWild() = %v, got %v", tc.deepWild, got)
			}
			if got, want := tc.input.HasWildcard(), tc.wild || tc.deepWild; got != want {
				t.Errorf("expected HasWildcard() = %v, got %v", want, got)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		input Channel
		want  bool
	}{
		{"valid channel without wildcards", "/foo", true},
		{"valid channel with single wildcard", "/foo/*", true},
		{"valid channel with double wildcard", "/foo/**", true},
		{"invalid channel with wildcard", "/foo/*/bar", false},
		{"invalid partial wildcard", "/foo/ba*", false},
		{"invalid channel", "foo/bar", false},
		{"empty segment", "/foo//bar", false},
		{"trailing slash", "/foo/", false},
		{"root only", "/", false},
	}

	for _, testCase := range tests {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := tc.input.IsValid(); tc.want != got {
				t.Errorf("expected Channel(\"%s\").IsValid() == %v, got %v", string(tc.input), tc.want, got)
			}
		})
	}
}

func TestSegmentsAndParent(t *testing.T) {
	c := Channel("/foo/bar/baz")
	segments := c.Segments()
	if len(segments) != 3 || segments[0] != "foo" || segments[2] != "baz" {
		t.Fatalf("unexpected segments %v", segments)
	}
	if got := c.Parent(); got != "/foo/bar" {
		t.Errorf("expected parent /foo/bar, got %s", got)
	}
	if got := Channel("/foo").Parent(); got != emptyChannel {
		t.Errorf("expected no parent for a top-level channel, got %s", got)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern Channel
		input   Channel
		want    bool
	}{
		{"matching channels without wildcards", "/meta/connect", "/meta/connect", true},
		{"non-matching channels without wildcards", "/meta/connect", "/foo/bar", false},
		{"matching channels with single wildcard", "/foo/*", "/foo/bar", true},
		{"single wildcard needs one more segment", "/foo/*", "/foo", false},
		{"single wildcard matches one segment only", "/foo/*", "/foo/bar/baz", false},
		{"matching channel with deep wildcard", "/foo/**", "/foo/bar", true},
		{"matching a longer channel with deep wildcard", "/foo/**", "/foo/bar/baz", true},
		{"deep wildcard needs one more segment", "/foo/**", "/foo", false},
		{"matching an invalid channel with wildcards", "*", "/foo", false},
		{"matching against a wildcard with different prefix", "/foo/*", "/bar/baz", false},
		{"prefix is compared by segment", "/foo/*", "/foobar/baz", false},
		{"invalid wildcard pattern", "/foo/***", "/foo/bar", false},
		{"top-level single wildcard", "/*", "/foo", true},
		{"top-level deep wildcard", "/**", "/foo/bar", true},
	}

	for _, testCase := range tests {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			got := tc.pattern.Match(tc.input)
			if tc.want != got {
				t.Errorf("expected pattern match got %v, want %v", got, tc.want)
			}
			if tc.pattern.MatchString(string(tc.input)) != got {
				t.Error("MatchString disagrees with Match")
			}
		})
	}
}
