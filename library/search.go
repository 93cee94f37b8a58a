package library

import "strings"

// SearchQuery filters the catalog. Empty strings and a zero Year are
// ignored; supplied criteria are ANDed.
type SearchQuery struct {
	Keyword string // case-insensitive, matched against title + description
	Author  string // case-sensitive substring
	Subject string // case-sensitive substring
	Year    int    // exact match when non-zero
}

func (q SearchQuery) matches(b *Book) bool {
	if q.Keyword != "" {
		haystack := strings.ToLower(b.Title + " " + b.Description)
		if !strings.Contains(haystack, strings.ToLower(q.Keyword)) {
			return false
		}
	}
	if q.Author != "" && !strings.Contains(b.Author, q.Author) {
		return false
	}
	if q.Subject != "" && !strings.Contains(b.Subject, q.Subject) {
		return false
	}
	if q.Year != 0 && b.Year != q.Year {
		return false
	}
	return true
}

// Search scans every book and returns the ids of the matches in catalog
// insertion order.
func (c *Catalog) Search(q SearchQuery) []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := []int64{}
	for _, b := range c.books {
		if q.matches(b) {
			ids = append(ids, b.ID)
		}
	}
	return ids
}
