package csv

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// NormalizeHeader strips a UTF-8 BOM from the first cell, trims edge
// whitespace and folds every cell to Unicode NFC so visually identical names
// compare equal. Case is preserved; schema matching is case-insensitive.
func NormalizeHeader(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		out[i] = norm.NFC.String(strings.TrimSpace(h))
	}
	return out
}
