// Package textnorm holds the whitespace and hyphenation clean-up applied to
// every piece of text before it reaches a document buffer.
package textnorm

import "strings"

// SoftHyphen is U+00AD, encoded in UTF-8 as 0xC2 0xAD.
const SoftHyphen = "\u00ad"

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// CollapseWhitespace replaces every run of spaces, tabs, CRs and LFs with a
// single space. Leading and trailing runs are collapsed but not removed.
func CollapseWhitespace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inRun := false
	for i := 0; i < len(s); i++ {
		if isSpace(s[i]) {
			if !inRun {
				sb.WriteByte(' ')
				inRun = true
			}
			continue
		}
		inRun = false
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// Trim removes leading and trailing spaces, tabs, CRs and LFs.
func Trim(s string) string {
	return strings.Trim(s, " \t\r\n")
}

// RemoveSoftHyphens strips hyphenation hints that have no meaning once text
// is reflowed.
func RemoveSoftHyphens(s string) string {
	if !strings.Contains(s, SoftHyphen) {
		return s
	}
	return strings.ReplaceAll(s, SoftHyphen, "")
}

// Clean applies all three normalizations, in the order used for titles and
// marker labels.
func Clean(s string) string {
	return Trim(CollapseWhitespace(RemoveSoftHyphens(s)))
}
