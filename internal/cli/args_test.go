package cli

import (
	"reflect"
	"testing"
)

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "flags after positional",
			in:   []string{"42", "--reason", "gone quiet"},
			want: []string{"--reason", "gone quiet", "42"},
		},
		{
			name: "equals form",
			in:   []string{"42", "--reason=gone"},
			want: []string{"--reason=gone", "42"},
		},
		{
			name: "bool flag does not eat positional",
			in:   []string{"--all", "extra"},
			want: []string{"--all", "extra"},
		},
		{
			name: "already ordered",
			in:   []string{"--status", "active", "7"},
			want: []string{"--status", "active", "7"},
		},
		{
			name: "trailing flag without value",
			in:   []string{"7", "--reason"},
			want: []string{"--reason", "7"},
		},
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("reorderArgs(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
