package textutil

import "testing"

func TestFoldCase(t *testing.T) {
	cases := map[string]struct {
		a, b  string
		equal bool
	}{
		"plain case difference":   {"Laura Mendoza", "laura mendoza", true},
		"accented uppercase":      {"JOSÉ PÉREZ", "josé pérez", true},
		"internal whitespace":     {"  Laura   Mendoza ", "laura mendoza", true},
		"different names":         {"Laura Mendoza", "Laura Mendez", false},
		"substring is not enough": {"Laura", "Laura Mendoza", false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := FoldCase(tc.a) == FoldCase(tc.b)
			if got != tc.equal {
				t.Fatalf("FoldCase(%q) == FoldCase(%q): got %v, want %v", tc.a, tc.b, got, tc.equal)
			}
		})
	}
}
