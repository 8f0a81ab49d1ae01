package util

import (
	"errors"
	"testing"
)

func TestCleanSlug(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: " octocat ", want: "octocat"},
		{in: "hello-world.go", want: "hello-world.go"},
		{in: "", wantErr: true},
		{in: "..", wantErr: true},
		{in: "a/b", wantErr: true},
		{in: "name?x=1", wantErr: true},
	}
	for _, tt := range tests {
		got, err := CleanSlug(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSlug) {
				t.Fatalf("CleanSlug(%q) expected ErrInvalidSlug, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("CleanSlug(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
