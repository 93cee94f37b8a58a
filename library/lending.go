package library

import "sync"

// Lending owns the Loan lifecycle and is the only writer of copy
// availability. A single mutex serializes every check-then-set on copies and
// every member aggregate check, so concurrent borrows cannot both take the
// same copy or jointly exceed the borrowing cap.
type Lending struct {
	mu sync.Mutex

	catalog *Catalog
	members *Members
	policy  Policy

	loans      []*Loan
	nextLoanID int64
}

// NewLending wires the engine to its stores.
func NewLending(catalog *Catalog, members *Members, policy Policy) *Lending {
	return &Lending{
		catalog:    catalog,
		members:    members,
		policy:     policy,
		nextLoanID: 1,
	}
}

// Policy returns the policy the engine enforces.
func (l *Lending) Policy() Policy { return l.policy }

// Borrow lends every copy in copyIDs to the member as one Loan due
// LoanPeriodDays after today. It is all-or-nothing: when the cap would be
// exceeded or any copy is missing or unavailable, nothing changes.
func (l *Lending) Borrow(memberID int64, copyIDs []int64, today int) (*Loan, error) {
	const op = "borrow"
	if len(copyIDs) == 0 {
		return nil, newError(KindInvalidInput, op, "no copies requested")
	}
	seen := make(map[int64]struct{}, len(copyIDs))
	for _, id := range copyIDs {
		if _, dup := seen[id]; dup {
			return nil, newError(KindInvalidInput, op, "copy %d requested twice", id)
		}
		seen[id] = struct{}{}
	}
	if !l.members.exists(memberID) {
		return nil, newError(KindNotFound, op, "member %d not found", memberID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	held := l.activeCopyCount(memberID)
	if held+len(copyIDs) > l.policy.MaxBorrowed {
		return nil, newError(KindBorrowLimitExceeded, op,
			"member %d holds %d of %d copies, cannot borrow %d more", memberID, held, l.policy.MaxBorrowed, len(copyIDs))
	}
	if err := l.catalog.checkLendable(copyIDs); err != nil {
		return nil, err
	}

	loan := &Loan{
		ID:         l.nextLoanID,
		MemberID:   memberID,
		CopyIDs:    append([]int64(nil), copyIDs...),
		BorrowDate: today,
		DueDate:    today + l.policy.LoanPeriodDays,
		Status:     LoanActive,
	}
	l.nextLoanID++
	l.loans = append(l.loans, loan)
	l.catalog.setAvailable(loan.CopyIDs, false)

	return cloneLoan(loan), nil
}

// BorrowByISBN borrows the first available copy of the book with isbn.
func (l *Lending) BorrowByISBN(memberID int64, isbn string, today int) (*Loan, error) {
	b, err := l.catalog.FindByISBN(isbn)
	if err != nil {
		return nil, err
	}
	for _, cp := range l.catalog.CopiesOf(b.ID) {
		if !cp.Available {
			continue
		}
		loan, err := l.Borrow(memberID, []int64{cp.ID}, today)
		if KindOf(err) == KindCopyUnavailable {
			// Taken between the listing and the borrow; try the next copy.
			continue
		}
		return loan, err
	}
	return nil, newError(KindCopyUnavailable, "borrow", "all copies of %q are on loan", b.Title)
}

// ReturnLoan closes an Active loan. Returning after the due date sets the
// status to Overdue and freezes fine = daysLate × FinePerDay; otherwise the
// status is Returned with no fine. All copies become available again.
func (l *Lending) ReturnLoan(loanID int64, today int) (*Loan, error) {
	const op = "return"
	l.mu.Lock()
	defer l.mu.Unlock()

	loan := l.find(loanID)
	if loan == nil {
		return nil, newError(KindNotFound, op, "loan %d not found", loanID)
	}
	if !loan.IsActive() {
		return nil, newError(KindLoanNotActive, op, "loan %d is already %s", loanID, loan.Status)
	}

	loan.ReturnDate = today
	loan.Fine = l.fineFor(loan, today)
	if today > loan.DueDate {
		loan.Status = LoanOverdue
	} else {
		loan.Status = LoanReturned
	}
	l.catalog.setAvailable(loan.CopyIDs, true)

	return cloneLoan(loan), nil
}

// RenewLoan extends the due date of an Active loan by extraDays. Closed
// loans report LoanNotActive; loans already renewed MaxRenewals times report
// RenewalLimitExceeded.
func (l *Lending) RenewLoan(loanID int64, extraDays int) (*Loan, error) {
	const op = "renew"
	if extraDays <= 0 {
		return nil, newError(KindInvalidInput, op, "extension must be positive, got %d", extraDays)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	loan := l.find(loanID)
	switch {
	case loan == nil:
		return nil, newError(KindNotFound, op, "loan %d not found", loanID)
	case !loan.IsActive():
		return nil, newError(KindLoanNotActive, op, "loan %d is already %s", loanID, loan.Status)
	case loan.RenewalCount >= l.policy.MaxRenewals:
		return nil, newError(KindRenewalLimitExceeded, op, "loan %d was renewed %d times already", loanID, loan.RenewalCount)
	}

	loan.DueDate += extraDays
	loan.RenewalCount++
	return cloneLoan(loan), nil
}

// RemoveBook deletes a book and all its copies unless one of them is part
// of an Active loan.
func (l *Lending) RemoveBook(bookID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.catalog.Book(bookID); err != nil {
		return newError(KindNotFound, "remove book", "book %d not found", bookID)
	}
	for _, loan := range l.loans {
		if !loan.IsActive() {
			continue
		}
		for _, owner := range l.catalog.ownerOf(loan.CopyIDs) {
			if owner == bookID {
				return newError(KindBookOnLoan, "remove book", "book %d has copies on loan %d", bookID, loan.ID)
			}
		}
	}
	return l.catalog.deleteBook(bookID)
}

// AccruedFine previews the fine an Active loan would be charged if returned
// on today. It changes nothing.
func (l *Lending) AccruedFine(loanID int64, today int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	loan := l.find(loanID)
	if loan == nil {
		return 0, newError(KindNotFound, "accrued fine", "loan %d not found", loanID)
	}
	if !loan.IsActive() {
		return loan.Fine, nil
	}
	return l.fineFor(loan, today), nil
}

// ActiveCopyCount is the number of copies the member currently holds.
func (l *Lending) ActiveCopyCount(memberID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeCopyCount(memberID)
}

// Loan returns a snapshot of one loan.
func (l *Lending) Loan(loanID int64) (*Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	loan := l.find(loanID)
	if loan == nil {
		return nil, newError(KindNotFound, "get loan", "loan %d not found", loanID)
	}
	return cloneLoan(loan), nil
}

// Loans lists every loan in creation order.
func (l *Lending) Loans() []Loan {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Loan, 0, len(l.loans))
	for _, loan := range l.loans {
		out = append(out, *cloneLoan(loan))
	}
	return out
}

// LoansOf lists the loans of one member.
func (l *Lending) LoansOf(memberID int64) []Loan {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Loan
	for _, loan := range l.loans {
		if loan.MemberID == memberID {
			out = append(out, *cloneLoan(loan))
		}
	}
	return out
}

func (l *Lending) fineFor(loan *Loan, today int) float64 {
	late := today - loan.DueDate
	if late <= 0 {
		return 0
	}
	return float64(late) * l.policy.FinePerDay
}

func (l *Lending) activeCopyCount(memberID int64) int {
	n := 0
	for _, loan := range l.loans {
		if loan.MemberID == memberID && loan.IsActive() {
			n += len(loan.CopyIDs)
		}
	}
	return n
}

func (l *Lending) find(id int64) *Loan {
	for _, loan := range l.loans {
		if loan.ID == id {
			return loan
		}
	}
	return nil
}

func (l *Lending) restore(loans []*Loan, nextLoanID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loans = loans
	l.nextLoanID = nextLoanID
}

func (l *Lending) counter() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextLoanID
}

func cloneLoan(loan *Loan) *Loan {
	out := *loan
	out.CopyIDs = append([]int64(nil), loan.CopyIDs...)
	return &out
}
