package library

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// LibraryManager is a thin façade over the stores and the Database, keeping
// CLI code simple. Every successful mutation is committed as a full snapshot
// plus one audit event.
type LibraryManager struct {
	// mu is held across each mutation and its commit so snapshots are saved
	// in mutation order and a reload never discards uncommitted work.
	mu sync.Mutex

	db  *Database
	log logrus.FieldLogger

	catalog *Catalog
	members *Members
	lending *Lending
	roles   *Roles

	// Reservations are carried through load/save untouched.
	reservations      []*Reservation
	nextReservationID int64
}

// NewLibraryManager opens (or creates) the SQLite database named by cfg and
// loads the stored library.
func NewLibraryManager(cfg Config, log logrus.FieldLogger) (*LibraryManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	db, err := NewDatabase(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	catalog := NewCatalog()
	members := NewMembers(cfg.Policy.MinPasswordLength)
	lm := &LibraryManager{
		db:      db,
		log:     log,
		catalog: catalog,
		members: members,
		lending: NewLending(catalog, members, cfg.Policy),
		roles:   NewRoles(),
	}
	if err := lm.reload(); err != nil {
		db.Close()
		return nil, err
	}
	return lm, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.db.Close()
}

func (lm *LibraryManager) Catalog() *Catalog { return lm.catalog }
func (lm *LibraryManager) Members() *Members { return lm.members }
func (lm *LibraryManager) Lending() *Lending { return lm.lending }
func (lm *LibraryManager) Roles() *Roles     { return lm.roles }

func (lm *LibraryManager) reload() error {
	s, err := lm.db.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}
	lm.catalog.restore(s.Books, s.Copies, s.NextBookID, s.NextCopyID)
	lm.members.restore(s.Members, s.NextMemberID)
	lm.lending.restore(s.Loans, s.NextLoanID)
	lm.roles.restore(s.Roles)
	lm.reservations = s.Reservations
	lm.nextReservationID = s.NextReservationID
	return nil
}

func (lm *LibraryManager) snapshot() *Snapshot {
	s := &Snapshot{
		Reservations:      lm.reservations,
		Roles:             lm.roles.Entries(),
		NextReservationID: lm.nextReservationID,
	}
	for _, m := range lm.members.All() {
		s.Members = append(s.Members, &m)
	}
	for _, b := range lm.catalog.Books() {
		s.Books = append(s.Books, &b)
	}
	for _, c := range lm.catalog.Copies() {
		s.Copies = append(s.Copies, &c)
	}
	for _, l := range lm.lending.Loans() {
		s.Loans = append(s.Loans, &l)
	}
	s.NextBookID, s.NextCopyID = lm.catalog.counters()
	s.NextMemberID = lm.members.counter()
	s.NextLoanID = lm.lending.counter()
	return s
}

// commit persists the in-memory state. On failure the stores are reloaded
// from disk so memory never runs ahead of the database. Callers hold lm.mu.
func (lm *LibraryManager) commit(kind string, payload any) error {
	ev, err := NewAuditEvent(kind, payload)
	if err != nil {
		return err
	}
	if err := lm.db.SaveSnapshot(lm.snapshot(), ev); err != nil {
		if rerr := lm.reload(); rerr != nil {
			lm.log.WithError(rerr).Error("reload after failed commit")
		}
		return fmt.Errorf("commit %s: %w", kind, err)
	}
	return nil
}

// ------------------ Member helpers ------------------

// RegisterMember registers an account and records its role.
func (lm *LibraryManager) RegisterMember(p Profile, password string, role Role) (*MemberAccount, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	acct, err := lm.members.Register(p, password)
	if err != nil {
		return nil, err
	}
	lm.roles.Set(acct.Email, role)
	if err := lm.commit("MemberRegistered", map[string]any{"member_id": acct.ID, "card": acct.Card.Number, "role": role.String()}); err != nil {
		return nil, err
	}
	lm.log.WithFields(logrus.Fields{"member_id": acct.ID, "card": acct.Card.Number, "role": role}).Info("member registered")
	return acct, nil
}

func (lm *LibraryManager) Authenticate(email, password string) (*MemberAccount, error) {
	acct, err := lm.members.Authenticate(email, password)
	if err != nil {
		lm.log.WithField("email", email).Warn("authentication failed")
		return nil, err
	}
	return acct, nil
}

func (lm *LibraryManager) ChangePassword(memberID int64, newPassword string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.members.ChangePassword(memberID, newPassword); err != nil {
		return err
	}
	if err := lm.commit("PasswordChanged", map[string]any{"member_id": memberID}); err != nil {
		return err
	}
	lm.log.WithField("member_id", memberID).Info("password changed")
	return nil
}

func (lm *LibraryManager) ForgotPassword(email, newPassword string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.members.ForgotPassword(email, newPassword); err != nil {
		return err
	}
	if err := lm.commit("PasswordReset", map[string]any{"email": email}); err != nil {
		return err
	}
	lm.log.WithField("email", email).Info("password reset")
	return nil
}

func (lm *LibraryManager) UpdateProfile(memberID int64, fullName, address, phone string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.members.UpdateProfile(memberID, fullName, address, phone); err != nil {
		return err
	}
	if err := lm.commit("ProfileUpdated", map[string]any{"member_id": memberID}); err != nil {
		return err
	}
	lm.log.WithField("member_id", memberID).Info("profile updated")
	return nil
}

// SetRole changes the role recorded for email. Demoting the last admin is
// refused so the library always keeps one.
func (lm *LibraryManager) SetRole(email string, role Role) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if _, err := lm.members.MemberByEmail(email); err != nil {
		return err
	}
	if role != RoleAdmin && lm.roles.Get(email) == RoleAdmin && !lm.roles.HasAdminOtherThan(email) {
		return newError(KindInvalidInput, "set role", "%s is the last admin", email)
	}
	lm.roles.Set(email, role)
	if err := lm.commit("RoleChanged", map[string]any{"email": email, "role": role.String()}); err != nil {
		return err
	}
	lm.log.WithFields(logrus.Fields{"email": email, "role": role}).Info("role changed")
	return nil
}

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(fields BookFields, copies int) (*Book, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	b, err := lm.catalog.AddBook(fields, copies)
	if err != nil {
		return nil, err
	}
	if err := lm.commit("BookAdded", map[string]any{"book_id": b.ID, "isbn": b.ISBN, "copies": copies}); err != nil {
		return nil, err
	}
	lm.log.WithFields(logrus.Fields{"book_id": b.ID, "copies": copies}).Info("book added")
	return b, nil
}

func (lm *LibraryManager) EditBook(bookID int64, fields BookFields) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.catalog.EditBook(bookID, fields); err != nil {
		return err
	}
	if err := lm.commit("BookEdited", map[string]any{"book_id": bookID, "fields": fields}); err != nil {
		return err
	}
	lm.log.WithField("book_id", bookID).Info("book edited")
	return nil
}

func (lm *LibraryManager) RemoveBook(bookID int64) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.lending.RemoveBook(bookID); err != nil {
		return err
	}
	if err := lm.commit("BookRemoved", map[string]any{"book_id": bookID}); err != nil {
		return err
	}
	lm.log.WithField("book_id", bookID).Info("book removed")
	return nil
}

// SearchBooks resolves the matching ids to book records.
func (lm *LibraryManager) SearchBooks(q SearchQuery) []Book {
	ids := lm.catalog.Search(q)
	out := make([]Book, 0, len(ids))
	for _, id := range ids {
		if b, err := lm.catalog.Book(id); err == nil {
			out = append(out, *b)
		}
	}
	return out
}

func (lm *LibraryManager) CountAvailableCopies(bookID int64) int {
	return lm.catalog.CountAvailableCopies(bookID)
}

// ------------------ Circulation ------------------

func (lm *LibraryManager) Borrow(memberID int64, copyIDs []int64, today int) (*Loan, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	loan, err := lm.lending.Borrow(memberID, copyIDs, today)
	if err != nil {
		lm.log.WithFields(logrus.Fields{"member_id": memberID, "copies": copyIDs}).WithError(err).Info("borrow refused")
		return nil, err
	}
	if err := lm.loanCommitted("LoanCreated", loan, "loan created"); err != nil {
		return nil, err
	}
	return loan, nil
}

func (lm *LibraryManager) BorrowByISBN(memberID int64, isbn string, today int) (*Loan, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	loan, err := lm.lending.BorrowByISBN(memberID, isbn, today)
	if err != nil {
		lm.log.WithFields(logrus.Fields{"member_id": memberID, "isbn": isbn}).WithError(err).Info("borrow refused")
		return nil, err
	}
	if err := lm.loanCommitted("LoanCreated", loan, "loan created"); err != nil {
		return nil, err
	}
	return loan, nil
}

func (lm *LibraryManager) ReturnLoan(loanID int64, today int) (*Loan, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	loan, err := lm.lending.ReturnLoan(loanID, today)
	if err != nil {
		return nil, err
	}
	if err := lm.loanCommitted("LoanClosed", loan, "loan closed"); err != nil {
		return nil, err
	}
	return loan, nil
}

func (lm *LibraryManager) RenewLoan(loanID int64, extraDays int) (*Loan, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	loan, err := lm.lending.RenewLoan(loanID, extraDays)
	if err != nil {
		return nil, err
	}
	if err := lm.loanCommitted("LoanRenewed", loan, "loan renewed"); err != nil {
		return nil, err
	}
	return loan, nil
}

func (lm *LibraryManager) loanCommitted(kind string, loan *Loan, msg string) error {
	if err := lm.commit(kind, loan); err != nil {
		return err
	}
	lm.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"member_id": loan.MemberID,
		"status":    loan.Status,
		"due":       loan.DueDate,
		"fine":      loan.Fine,
	}).Info(msg)
	return nil
}

// OverdueSweep logs and returns the reminders for today. It never changes
// loan state.
func (lm *LibraryManager) OverdueSweep(today int) []Notice {
	notices := lm.lending.OverdueSweep(today)
	for _, n := range notices {
		lm.log.WithFields(logrus.Fields{
			"loan_id":   n.LoanID,
			"member_id": n.MemberID,
			"days":      n.Days,
			"via":       n.Preference,
		}).Info(n.Kind.String())
	}
	return notices
}

// ------------------ Legacy import ------------------

// ImportBooks adds every decodable data.txt record. Bad lines are returned,
// not fatal.
func (lm *LibraryManager) ImportBooks(r io.Reader) (int, []LineError, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	imported := 0
	bad, err := scanRecords(r, func(line string) error {
		rec, err := ParseBookRecord(line)
		if err != nil {
			return err
		}
		if _, err := lm.catalog.AddBook(rec.Fields, rec.Copies); err != nil {
			return err
		}
		imported++
		return nil
	})
	if err != nil {
		if rerr := lm.reload(); rerr != nil {
			lm.log.WithError(rerr).Error("reload after failed import")
		}
		return 0, bad, err
	}
	if imported > 0 {
		if err := lm.commit("BooksImported", map[string]any{"count": imported}); err != nil {
			return 0, bad, err
		}
	}
	lm.log.WithFields(logrus.Fields{"imported": imported, "skipped": len(bad)}).Info("books imported")
	return imported, bad, nil
}

// ImportMembers registers every decodable users.txt record and records its
// role. Passwords are hashed on the way in.
func (lm *LibraryManager) ImportMembers(r io.Reader) (int, []LineError, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	imported := 0
	bad, err := scanRecords(r, func(line string) error {
		rec, err := ParseMemberRecord(line)
		if err != nil {
			return err
		}
		acct, err := lm.members.Register(rec.Profile, rec.Password)
		if err != nil {
			return err
		}
		lm.roles.Set(acct.Email, rec.Role)
		imported++
		return nil
	})
	if err != nil {
		if rerr := lm.reload(); rerr != nil {
			lm.log.WithError(rerr).Error("reload after failed import")
		}
		return 0, bad, err
	}
	if imported > 0 {
		if err := lm.commit("MembersImported", map[string]any{"count": imported}); err != nil {
			return 0, bad, err
		}
	}
	lm.log.WithFields(logrus.Fields{"imported": imported, "skipped": len(bad)}).Info("members imported")
	return imported, bad, nil
}

// AuditEvents returns the newest committed events.
func (lm *LibraryManager) AuditEvents(limit int) ([]*AuditEvent, error) {
	return lm.db.AuditEvents(limit)
}
