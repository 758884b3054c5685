package lang

import (
	"testing"
)

func TestIsHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"Actor.hpp", true},
		{"src/ACTOR.HPP", true},
		{"legacy.h", true},
		{"inline/Vector.inl", true},
		{"Actor.cpp", false},
		{"notes.txt", false},
		{"Makefile", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if got := IsHeader(tt.path); got != tt.want {
				t.Errorf("IsHeader(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewParser(t *testing.T) {
	t.Parallel()

	p := NewParser()
	if p == nil {
		t.Fatal("NewParser returned nil")
	}
	p.Close()
}

func TestQuery(t *testing.T) {
	t.Parallel()

	q, err := Query(IncludeQuery)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q == nil {
		t.Fatal("query is nil")
	}
	again, _ := Query(IncludeQuery)
	if again != q {
		t.Error("query should be compiled once")
	}
}

func TestQueryMissing(t *testing.T) {
	t.Parallel()

	if _, err := Query("no-such-query"); err == nil {
		t.Error("expected error for missing query file")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	t.Parallel()

	if got := CollapseWhitespace("  const\n\tFoo  & "); got != "const Foo &" {
		t.Errorf("CollapseWhitespace = %q", got)
	}
}
