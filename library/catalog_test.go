package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBookCreatesCopies(t *testing.T) {
	c := NewCatalog()
	b, err := c.AddBook(BookFields{ISBN: "111", Title: "Dune", RackPosition: "A-3"}, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.ID)

	copies := c.CopiesOf(b.ID)
	require.Len(t, copies, 3)
	for i, cp := range copies {
		assert.Equal(t, int64(i+1), cp.ID)
		assert.True(t, cp.Available)
		assert.Equal(t, "A-3", cp.Location)
	}
	assert.Equal(t, "BC-1-1", copies[0].Barcode)
	assert.Equal(t, "BC-1-3", copies[2].Barcode)
	assert.Equal(t, 3, c.CountAvailableCopies(b.ID))

	second, err := c.AddBook(BookFields{Title: "Emma"}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, int64(4), c.CopiesOf(second.ID)[0].ID)
	assert.Equal(t, "BC-2-1", c.CopiesOf(second.ID)[0].Barcode)
}

func TestAddBookValidation(t *testing.T) {
	c := NewCatalog()
	_, err := c.AddBook(BookFields{Title: "  "}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.AddBook(BookFields{Title: "Dune"}, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, c.Books())

	b, err := c.AddBook(BookFields{Title: "Dune"}, 0)
	require.NoError(t, err)
	assert.Zero(t, c.CountAvailableCopies(b.ID))
}

func TestEditBookOverwritesFieldsAndCopyLocations(t *testing.T) {
	c := NewCatalog()
	b, err := c.AddBook(BookFields{ISBN: "111", Title: "Dune", Author: "Herbert", Year: 1965, RackPosition: "A-3"}, 2)
	require.NoError(t, err)

	require.NoError(t, c.EditBook(b.ID, BookFields{Title: "Dune Messiah", RackPosition: "B-1"}))

	got, err := c.Book(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)
	assert.Empty(t, got.Author, "edit is a full overwrite")
	assert.Empty(t, got.ISBN)
	assert.Zero(t, got.Year)
	for _, cp := range c.CopiesOf(b.ID) {
		assert.Equal(t, "B-1", cp.Location)
	}

	assert.ErrorIs(t, c.EditBook(99, BookFields{Title: "x"}), ErrNotFound)
}

func TestIDsStayIncreasingAfterRemoval(t *testing.T) {
	c := NewCatalog()
	b1, _ := c.AddBook(BookFields{Title: "One"}, 2)
	require.NoError(t, c.deleteBook(b1.ID))
	b2, err := c.AddBook(BookFields{Title: "Two"}, 1)
	require.NoError(t, err)
	assert.Greater(t, b2.ID, b1.ID)
	assert.Equal(t, int64(3), c.CopiesOf(b2.ID)[0].ID)
}

func TestReturnedBookIsACopy(t *testing.T) {
	c := NewCatalog()
	b, _ := c.AddBook(BookFields{Title: "One"}, 1)
	b.Title = "mutated"
	got, _ := c.Book(b.ID)
	assert.Equal(t, "One", got.Title)
}
