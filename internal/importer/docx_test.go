package importer

import (
	"testing"
)

func TestHeadingLevelFromStyle(t *testing.T) {
	cases := []struct {
		style string
		want  int
	}{
		{"Heading1", 1},
		{"heading 2", 2},
		{"HEADING 3", 3},
		{"Heading6", 6},
		{"Title", 0},
		{"Normal", 0},
		{"Heading7", 0},
		{"heading10", 0},
		{"", 0},
	}

	for _, tc := range cases {
		if got := headingLevelFromStyle(tc.style); got != tc.want {
			t.Errorf("headingLevelFromStyle(%q) = %d, want %d", tc.style, got, tc.want)
		}
	}
}
