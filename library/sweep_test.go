package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverdueSweepNotices(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	a := f.member(t, "a@x")
	acct, err := f.members.Register(Profile{Email: "b@x", Preference: PreferPostalMail}, "secret1")
	require.NoError(t, err)
	b := acct.ID
	_, copies := f.book(t, "Dune", 4)

	dueSoon, err := f.lending.Borrow(a, copies[0:1], 0) // due 14
	require.NoError(t, err)
	late, err := f.lending.Borrow(b, copies[1:2], -5) // due 9
	require.NoError(t, err)
	_, err = f.lending.Borrow(a, copies[2:3], 5) // due 19, nothing
	require.NoError(t, err)
	closed, err := f.lending.Borrow(b, copies[3:4], -10) // due 4, returned
	require.NoError(t, err)
	_, err = f.lending.ReturnLoan(closed.ID, 11)
	require.NoError(t, err)

	notices := f.lending.OverdueSweep(12)
	require.Len(t, notices, 2)

	assert.Equal(t, NoticeDueSoon, notices[0].Kind)
	assert.Equal(t, dueSoon.ID, notices[0].LoanID)
	assert.Equal(t, 2, notices[0].Days)
	assert.Equal(t, PreferEmail, notices[0].Preference)

	assert.Equal(t, NoticeOverdue, notices[1].Kind)
	assert.Equal(t, late.ID, notices[1].LoanID)
	assert.Equal(t, 3, notices[1].Days)
	assert.Equal(t, PreferPostalMail, notices[1].Preference)
}

func TestOverdueSweepOnlyExactlyTwoDaysIsDueSoon(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	a := f.member(t, "a@x")
	_, copies := f.book(t, "Dune", 1)
	_, err := f.lending.Borrow(a, copies, 0)
	require.NoError(t, err)

	for _, today := range []int{0, 11, 13, 14} {
		assert.Empty(t, f.lending.OverdueSweep(today), "day %d", today)
	}
	assert.Len(t, f.lending.OverdueSweep(12), 1)
	assert.Len(t, f.lending.OverdueSweep(15), 1)
}

func TestOverdueSweepNeverMutatesLoans(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	a := f.member(t, "a@x")
	bookID, copies := f.book(t, "Dune", 2)
	_, err := f.lending.Borrow(a, copies, 0)
	require.NoError(t, err)

	before := f.lending.Loans()
	for day := 0; day < 40; day++ {
		f.lending.OverdueSweep(day)
	}
	assert.Equal(t, before, f.lending.Loans())
	assert.Zero(t, f.catalog.CountAvailableCopies(bookID))
	for _, l := range f.lending.Loans() {
		assert.Equal(t, LoanActive, l.Status)
	}
}
