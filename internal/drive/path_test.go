package drive

import (
	"errors"
	"reflect"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
		err   error
	}{
		{name: "simple", input: "Invoices", want: []string{"Invoices"}},
		{name: "nested", input: "Invoices/2025/Amazon", want: []string{"Invoices", "2025", "Amazon"}},
		{name: "trims segments", input: " Invoices / 2025 ", want: []string{"Invoices", "2025"}},
		{name: "drops empty segments", input: "Invoices//2025/", want: []string{"Invoices", "2025"}},
		{name: "leading slash", input: "/Invoices", want: []string{"Invoices"}},
		{name: "empty", input: "", err: ErrInvalidPath},
		{name: "only separators", input: "///", err: ErrInvalidPath},
		{name: "whitespace only", input: "   ", err: ErrInvalidPath},
		{name: "quote rejected", input: "Bob's files", err: ErrInvalidPath},
		{name: "backslash rejected", input: `a\b`, err: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.input)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("ParsePath(%q) error = %v, want %v", tt.input, err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q) unexpected error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParsePath(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestJoinPath(t *testing.T) {
	if got := JoinPath([]string{"a", "b", "c"}); got != "a/b/c" {
		t.Fatalf("JoinPath = %q, want a/b/c", got)
	}
}
