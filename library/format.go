package library

// TruncateString shortens s to at most maxLen runes for fixed-width tables,
// ending in "..." when there is room for it.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
