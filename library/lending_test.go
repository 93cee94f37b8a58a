package library

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	catalog *Catalog
	members *Members
	lending *Lending
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	catalog := NewCatalog()
	members := NewMembers(policy.MinPasswordLength)
	members.hashCost = bcrypt.MinCost
	return &fixture{catalog: catalog, members: members, lending: NewLending(catalog, members, policy)}
}

func (f *fixture) member(t *testing.T, email string) int64 {
	t.Helper()
	acct, err := f.members.Register(Profile{FullName: email, Email: email}, "secret1")
	require.NoError(t, err)
	return acct.ID
}

func (f *fixture) book(t *testing.T, title string, copies int) (int64, []int64) {
	t.Helper()
	b, err := f.catalog.AddBook(BookFields{ISBN: "isbn-" + title, Title: title, RackPosition: "R1"}, copies)
	require.NoError(t, err)
	var ids []int64
	for _, c := range f.catalog.CopiesOf(b.ID) {
		ids = append(ids, c.ID)
	}
	return b.ID, ids
}

// availabilityMatchesLoans checks that a copy is unavailable exactly when one
// Active loan lists it.
func availabilityMatchesLoans(t *testing.T, f *fixture) {
	t.Helper()
	held := map[int64]int{}
	for _, l := range f.lending.Loans() {
		if l.IsActive() {
			for _, id := range l.CopyIDs {
				held[id]++
			}
		}
	}
	for _, c := range f.catalog.Copies() {
		assert.LessOrEqual(t, held[c.ID], 1, "copy %d in several active loans", c.ID)
		assert.Equal(t, held[c.ID] == 0, c.Available, "copy %d availability", c.ID)
	}
}

func TestBorrowSetsDueDateAndFlipsCopies(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	m := f.member(t, "a@x")
	bookID, copies := f.book(t, "Dune", 2)

	loan, err := f.lending.Borrow(m, []int64{copies[0]}, 0)
	require.NoError(t, err)
	assert.Equal(t, 14, loan.DueDate)
	assert.Equal(t, LoanActive, loan.Status)
	assert.Equal(t, 1, f.catalog.CountAvailableCopies(bookID))
	availabilityMatchesLoans(t, f)
}

func TestReturnScenario(t *testing.T) {
	for _, tc := range []struct {
		name   string
		day    int
		fine   float64
		status LoanStatus
	}{
		{"late", 16, 2.0, LoanOverdue},
		{"early", 10, 0, LoanReturned},
		{"on_due_date", 14, 0, LoanReturned},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, DefaultPolicy())
			m := f.member(t, "a@x")
			bookID, copies := f.book(t, "Dune", 2)

			loan, err := f.lending.Borrow(m, []int64{copies[0]}, 0)
			require.NoError(t, err)

			closed, err := f.lending.ReturnLoan(loan.ID, tc.day)
			require.NoError(t, err)
			assert.Equal(t, tc.status, closed.Status)
			assert.InDelta(t, tc.fine, closed.Fine, 1e-9)
			assert.Equal(t, tc.day, closed.ReturnDate)
			assert.Equal(t, 2, f.catalog.CountAvailableCopies(bookID))
			availabilityMatchesLoans(t, f)
		})
	}
}

func TestReturnIsTerminal(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	m := f.member(t, "a@x")
	_, copies := f.book(t, "Dune", 1)
	loan, err := f.lending.Borrow(m, copies, 0)
	require.NoError(t, err)

	first, err := f.lending.ReturnLoan(loan.ID, 20)
	require.NoError(t, err)

	_, err = f.lending.ReturnLoan(loan.ID, 30)
	assert.ErrorIs(t, err, ErrLoanNotActive)

	_, err = f.lending.RenewLoan(loan.ID, 7)
	assert.ErrorIs(t, err, ErrLoanNotActive)

	after, err := f.lending.Loan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Fine, after.Fine, "fine is frozen at first return")
	assert.Equal(t, 20, after.ReturnDate)

	_, err = f.lending.ReturnLoan(999, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBorrowIsAllOrNothing(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	alice := f.member(t, "alice@x")
	bob := f.member(t, "bob@x")
	_, copies := f.book(t, "Dune", 3)

	_, err := f.lending.Borrow(alice, []int64{copies[1]}, 0)
	require.NoError(t, err)

	_, err = f.lending.Borrow(bob, []int64{copies[0], copies[1], copies[2]}, 0)
	assert.ErrorIs(t, err, ErrCopyUnavailable)

	_, err = f.lending.Borrow(bob, []int64{copies[0], 404}, 0)
	assert.ErrorIs(t, err, ErrCopyUnavailable)

	assert.Empty(t, f.lending.LoansOf(bob))
	c0, _ := f.catalog.Copy(copies[0])
	c2, _ := f.catalog.Copy(copies[2])
	assert.True(t, c0.Available)
	assert.True(t, c2.Available)
	assert.Len(t, f.lending.Loans(), 1)
	availabilityMatchesLoans(t, f)
}

func TestBorrowRejectsBadRequests(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	m := f.member(t, "a@x")
	_, copies := f.book(t, "Dune", 2)

	_, err := f.lending.Borrow(m, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.lending.Borrow(m, []int64{copies[0], copies[0]}, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.lending.Borrow(42, []int64{copies[0]}, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.lending.Loans())
	availabilityMatchesLoans(t, f)
}

func TestBorrowingCap(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxBorrowed = 3
	f := newFixture(t, policy)
	m := f.member(t, "a@x")
	_, copies := f.book(t, "Dune", 5)

	first, err := f.lending.Borrow(m, copies[:2], 0)
	require.NoError(t, err)

	_, err = f.lending.Borrow(m, copies[2:4], 0)
	assert.ErrorIs(t, err, ErrBorrowLimitExceeded)
	assert.Equal(t, 2, f.lending.ActiveCopyCount(m))

	_, err = f.lending.Borrow(m, copies[2:3], 0)
	require.NoError(t, err)
	assert.Equal(t, 3, f.lending.ActiveCopyCount(m))

	_, err = f.lending.ReturnLoan(first.ID, 5)
	require.NoError(t, err)
	_, err = f.lending.Borrow(m, copies[3:5], 5)
	require.NoError(t, err)
	assert.Equal(t, 3, f.lending.ActiveCopyCount(m))
	availabilityMatchesLoans(t, f)
}

func TestRenewLoan(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	m := f.member(t, "a@x")
	_, copies := f.book(t, "Dune", 1)
	loan, err := f.lending.Borrow(m, copies, 0)
	require.NoError(t, err)

	_, err = f.lending.RenewLoan(loan.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	renewed, err := f.lending.RenewLoan(loan.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 21, renewed.DueDate)
	assert.Equal(t, 1, renewed.RenewalCount)

	renewed, err = f.lending.RenewLoan(loan.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 24, renewed.DueDate)

	_, err = f.lending.RenewLoan(loan.ID, 7)
	assert.ErrorIs(t, err, ErrRenewalLimitExceeded)
	assert.Equal(t, KindRenewalLimitExceeded, KindOf(err))

	got, _ := f.lending.Loan(loan.ID)
	assert.Equal(t, LoanActive, got.Status)
	assert.Equal(t, 24, got.DueDate)

	closed, err := f.lending.ReturnLoan(loan.ID, 26)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, closed.Fine, 1e-9)

	_, err = f.lending.RenewLoan(123, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveBookProtectsActiveLoans(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	m := f.member(t, "a@x")
	bookID, copies := f.book(t, "Dune", 2)
	otherID, _ := f.book(t, "Emma", 1)

	loan, err := f.lending.Borrow(m, copies[:1], 0)
	require.NoError(t, err)

	err = f.lending.RemoveBook(bookID)
	assert.ErrorIs(t, err, ErrBookOnLoan)
	assert.Len(t, f.catalog.CopiesOf(bookID), 2)

	_, err = f.lending.ReturnLoan(loan.ID, 3)
	require.NoError(t, err)

	require.NoError(t, f.lending.RemoveBook(bookID))
	assert.Empty(t, f.catalog.CopiesOf(bookID))
	_, err = f.catalog.Copy(copies[0])
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.catalog.Book(bookID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, f.catalog.CopiesOf(otherID), 1)
	assert.ErrorIs(t, f.lending.RemoveBook(bookID), ErrNotFound)
}

func TestBorrowByISBN(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	m := f.member(t, "a@x")
	_, copies := f.book(t, "Dune", 2)

	first, err := f.lending.BorrowByISBN(m, "isbn-Dune", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{copies[0]}, first.CopyIDs)

	second, err := f.lending.BorrowByISBN(m, "isbn-Dune", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{copies[1]}, second.CopyIDs)

	_, err = f.lending.BorrowByISBN(m, "isbn-Dune", 1)
	assert.ErrorIs(t, err, ErrCopyUnavailable)

	_, err = f.lending.BorrowByISBN(m, "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccruedFineIsReadOnly(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	m := f.member(t, "a@x")
	_, copies := f.book(t, "Dune", 1)
	loan, err := f.lending.Borrow(m, copies, 0)
	require.NoError(t, err)

	fine, err := f.lending.AccruedFine(loan.ID, 19)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, fine, 1e-9)

	got, _ := f.lending.Loan(loan.ID)
	assert.Equal(t, LoanActive, got.Status)
	assert.Zero(t, got.Fine)
}

func TestConcurrentBorrowsNeverShareACopy(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxBorrowed = 100
	f := newFixture(t, policy)
	_, copies := f.book(t, "Dune", 3)

	const workers = 20
	ids := make([]int64, workers)
	for i := range ids {
		ids[i] = f.member(t, string(rune('a'+i))+"@x")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, id := range ids {
		wg.Add(1)
		go func(memberID int64) {
			defer wg.Done()
			if _, err := f.lending.Borrow(memberID, copies, 0); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	availabilityMatchesLoans(t, f)
}

func TestConcurrentBorrowsRespectCap(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxBorrowed = 2
	f := newFixture(t, policy)
	m := f.member(t, "a@x")
	_, copies := f.book(t, "Dune", 10)

	var wg sync.WaitGroup
	for _, id := range copies {
		wg.Add(1)
		go func(copyID int64) {
			defer wg.Done()
			_, _ = f.lending.Borrow(m, []int64{copyID}, 0)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 2, f.lending.ActiveCopyCount(m))
	availabilityMatchesLoans(t, f)
}

// TestRandomizedInvariants drives a fixed pseudo-random sequence of borrows
// and returns and checks the cap and availability after every step.
func TestRandomizedInvariants(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxBorrowed = 3
	f := newFixture(t, policy)
	members := []int64{f.member(t, "a@x"), f.member(t, "b@x"), f.member(t, "c@x")}
	_, copies := f.book(t, "Dune", 8)

	seed := uint32(7)
	next := func(n int) int {
		seed = seed*1664525 + 1013904223
		return int(seed>>16) % n
	}

	for step := 0; step < 300; step++ {
		if next(3) == 0 {
			loans := f.lending.Loans()
			if len(loans) > 0 {
				_, _ = f.lending.ReturnLoan(loans[next(len(loans))].ID, step)
			}
		} else {
			n := 1 + next(2)
			req := []int64{copies[next(len(copies))]}
			if n == 2 {
				req = append(req, copies[next(len(copies))])
			}
			_, _ = f.lending.Borrow(members[next(len(members))], req, step)
		}

		for _, m := range members {
			require.LessOrEqual(t, f.lending.ActiveCopyCount(m), policy.MaxBorrowed)
		}
		availabilityMatchesLoans(t, f)
	}
}
