package library

import (
	"fmt"
	"strings"
	"sync"
)

// Catalog holds Book records and their physical copies, and owns id
// generation for both. Books and copies are kept in insertion order.
type Catalog struct {
	mu sync.RWMutex

	books  []*Book
	copies []*BookItem

	nextBookID int64
	nextCopyID int64
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{nextBookID: 1, nextCopyID: 1}
}

// AddBook creates one Book plus copyCount available copies shelved at the
// book's rack position. Barcodes follow BC-<bookID>-<sequence>.
func (c *Catalog) AddBook(fields BookFields, copyCount int) (*Book, error) {
	if strings.TrimSpace(fields.Title) == "" {
		return nil, newError(KindInvalidInput, "add book", "title is required")
	}
	if copyCount < 0 {
		return nil, newError(KindInvalidInput, "add book", "copy count must not be negative, got %d", copyCount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := &Book{ID: c.nextBookID, BookFields: fields}
	c.nextBookID++
	c.books = append(c.books, b)

	for i := 0; i < copyCount; i++ {
		c.copies = append(c.copies, &BookItem{
			ID:        c.nextCopyID,
			BookID:    b.ID,
			Barcode:   fmt.Sprintf("BC-%d-%d", b.ID, i+1),
			Available: true,
			Location:  fields.RackPosition,
		})
		c.nextCopyID++
	}
	cp := *b
	return &cp, nil
}

// EditBook overwrites every descriptive field of the book and moves all of
// its copies to the new rack position. Copy locations are overwritten, not
// merged.
func (c *Catalog) EditBook(bookID int64, fields BookFields) error {
	if strings.TrimSpace(fields.Title) == "" {
		return newError(KindInvalidInput, "edit book", "title is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.findBook(bookID)
	if b == nil {
		return newError(KindNotFound, "edit book", "book %d not found", bookID)
	}
	b.BookFields = fields
	for _, cp := range c.copies {
		if cp.BookID == bookID {
			cp.Location = fields.RackPosition
		}
	}
	return nil
}

// Book returns a copy of the book record.
func (c *Catalog) Book(bookID int64) (*Book, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b := c.findBook(bookID)
	if b == nil {
		return nil, newError(KindNotFound, "get book", "book %d not found", bookID)
	}
	cp := *b
	return &cp, nil
}

// FindByISBN returns the first book carrying isbn.
func (c *Catalog) FindByISBN(isbn string) (*Book, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.books {
		if b.ISBN == isbn {
			cp := *b
			return &cp, nil
		}
	}
	return nil, newError(KindNotFound, "find book", "no book with ISBN %q", isbn)
}

// Books lists all books in insertion order.
func (c *Catalog) Books() []Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Book, 0, len(c.books))
	for _, b := range c.books {
		out = append(out, *b)
	}
	return out
}

// Copy returns a snapshot of a single copy.
func (c *Catalog) Copy(copyID int64) (*BookItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := c.findCopy(copyID)
	if cp == nil {
		return nil, newError(KindNotFound, "get copy", "copy %d not found", copyID)
	}
	out := *cp
	return &out, nil
}

// Copies lists every copy in the catalog.
func (c *Catalog) Copies() []BookItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]BookItem, 0, len(c.copies))
	for _, cp := range c.copies {
		out = append(out, *cp)
	}
	return out
}

// CopiesOf lists the copies owned by bookID.
func (c *Catalog) CopiesOf(bookID int64) []BookItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []BookItem
	for _, cp := range c.copies {
		if cp.BookID == bookID {
			out = append(out, *cp)
		}
	}
	return out
}

// CountAvailableCopies counts the book's copies that can be lent right now.
func (c *Catalog) CountAvailableCopies(bookID int64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, cp := range c.copies {
		if cp.BookID == bookID && cp.Available {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Lending-only mutators. Callers must hold the Lending lock.
// ---------------------------------------------------------------------------

// checkLendable verifies every copy exists and is available.
func (c *Catalog) checkLendable(copyIDs []int64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range copyIDs {
		cp := c.findCopy(id)
		if cp == nil {
			return newError(KindCopyUnavailable, "borrow", "copy %d does not exist", id)
		}
		if !cp.Available {
			return newError(KindCopyUnavailable, "borrow", "copy %d is not available", id)
		}
	}
	return nil
}

func (c *Catalog) setAvailable(copyIDs []int64, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range copyIDs {
		if cp := c.findCopy(id); cp != nil {
			cp.Available = available
		}
	}
}

// ownerOf maps copy ids to their book id; unknown copies are omitted.
func (c *Catalog) ownerOf(copyIDs []int64) map[int64]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]int64, len(copyIDs))
	for _, id := range copyIDs {
		if cp := c.findCopy(id); cp != nil {
			out[id] = cp.BookID
		}
	}
	return out
}

// deleteBook removes the book and all its copies.
func (c *Catalog) deleteBook(bookID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, b := range c.books {
		if b.ID == bookID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return newError(KindNotFound, "remove book", "book %d not found", bookID)
	}
	c.books = append(c.books[:idx], c.books[idx+1:]...)

	kept := c.copies[:0]
	for _, cp := range c.copies {
		if cp.BookID != bookID {
			kept = append(kept, cp)
		}
	}
	for i := len(kept); i < len(c.copies); i++ {
		c.copies[i] = nil
	}
	c.copies = kept
	return nil
}

// restore replaces the catalog contents with persisted state.
func (c *Catalog) restore(books []*Book, copies []*BookItem, nextBookID, nextCopyID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books = books
	c.copies = copies
	c.nextBookID = nextBookID
	c.nextCopyID = nextCopyID
}

func (c *Catalog) counters() (nextBookID, nextCopyID int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextBookID, c.nextCopyID
}

func (c *Catalog) findBook(id int64) *Book {
	for _, b := range c.books {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (c *Catalog) findCopy(id int64) *BookItem {
	for _, cp := range c.copies {
		if cp.ID == id {
			return cp
		}
	}
	return nil
}
