package textutil

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldCase normalizes free-text names for case-insensitive comparison: trims,
// collapses internal whitespace, and applies Unicode case folding so accented
// uppercase forms compare equal to their lowercase counterparts.
func FoldCase(s string) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(collapsed)
}
