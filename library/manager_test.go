package library

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "lib.db")
	return cfg
}

func openManager(t *testing.T, cfg Config) (*LibraryManager, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	mgr, err := NewLibraryManager(cfg, logger)
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	mgr.members.hashCost = bcrypt.MinCost
	return mgr, hook
}

func newManager(t *testing.T) *LibraryManager {
	mgr, _ := openManager(t, testConfig(t.TempDir()))
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestNewLibraryManagerRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Policy.LoanPeriodDays = 0
	_, err := NewLibraryManager(cfg, logrus.New())
	assert.Error(t, err)
}

func TestStateSurvivesRestart(t *testing.T) {
	cfg := testConfig(t.TempDir())
	mgr, _ := openManager(t, cfg)

	acct, err := mgr.RegisterMember(Profile{FullName: "Alice", Email: "alice@x"}, "secret1", RoleLibrarian)
	require.NoError(t, err)
	book, err := mgr.AddBook(BookFields{ISBN: "978", Title: "Dune", RackPosition: "A1"}, 2)
	require.NoError(t, err)
	copies := mgr.Catalog().CopiesOf(book.ID)
	loan, err := mgr.Borrow(acct.ID, []int64{copies[0].ID}, 100)
	require.NoError(t, err)
	_, err = mgr.RenewLoan(loan.ID, 7)
	require.NoError(t, err)
	require.NoError(t, mgr.Close())

	mgr, _ = openManager(t, cfg)
	defer mgr.Close()

	got, err := mgr.Lending().Loan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanActive, got.Status)
	assert.Equal(t, 121, got.DueDate)
	assert.Equal(t, 1, got.RenewalCount)
	assert.Equal(t, 1, mgr.CountAvailableCopies(book.ID))
	assert.Equal(t, RoleLibrarian, mgr.Roles().Get("alice@x"))

	_, err = mgr.Authenticate("alice@x", "secret1")
	require.NoError(t, err)

	// counters keep going after a restart
	next, err := mgr.RegisterMember(Profile{Email: "bob@x"}, "secret2", RoleMember)
	require.NoError(t, err)
	assert.Equal(t, acct.ID+1, next.ID)

	closed, err := mgr.ReturnLoan(loan.ID, 125)
	require.NoError(t, err)
	assert.Equal(t, LoanOverdue, closed.Status)
	assert.Equal(t, 4.0, closed.Fine)
	assert.Equal(t, 2, mgr.CountAvailableCopies(book.ID))
}

func TestRemoveBookScenario(t *testing.T) {
	mgr := newManager(t)
	acct, err := mgr.RegisterMember(Profile{Email: "a@x"}, "secret1", RoleMember)
	require.NoError(t, err)
	book, err := mgr.AddBook(BookFields{ISBN: "1", Title: "Dune"}, 1)
	require.NoError(t, err)

	loan, err := mgr.BorrowByISBN(acct.ID, "1", 0)
	require.NoError(t, err)

	err = mgr.RemoveBook(book.ID)
	assert.ErrorIs(t, err, ErrBookOnLoan)
	_, err = mgr.Catalog().Book(book.ID)
	require.NoError(t, err)

	_, err = mgr.ReturnLoan(loan.ID, 3)
	require.NoError(t, err)
	require.NoError(t, mgr.RemoveBook(book.ID))
	assert.Empty(t, mgr.Catalog().Books())
	assert.Empty(t, mgr.Catalog().Copies())

	// the closed loan still names its copy
	kept, err := mgr.Lending().Loan(loan.ID)
	require.NoError(t, err)
	assert.Len(t, kept.CopyIDs, 1)
}

func TestRefusedOperationsCommitNothing(t *testing.T) {
	mgr := newManager(t)
	acct, err := mgr.RegisterMember(Profile{Email: "a@x"}, "secret1", RoleMember)
	require.NoError(t, err)
	before, err := mgr.AuditEvents(0)
	require.NoError(t, err)

	_, err = mgr.RegisterMember(Profile{Email: "a@x"}, "secret1", RoleMember)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	_, err = mgr.Borrow(acct.ID, []int64{42}, 0)
	assert.ErrorIs(t, err, ErrCopyUnavailable)
	_, err = mgr.ReturnLoan(9, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := mgr.AuditEvents(0)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.RegisterMember(Profile{Email: "a@x"}, "secret1", RoleMember)
	require.NoError(t, err)
	require.NoError(t, mgr.SetRole("a@x", RoleAdmin))
	assert.ErrorIs(t, mgr.SetRole("ghost@x", RoleAdmin), ErrNotFound)

	events, err := mgr.AuditEvents(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "RoleChanged", events[0].Kind)
	assert.Equal(t, "MemberRegistered", events[1].Kind)

	var payload struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	require.NoError(t, events[0].Decode(&payload))
	assert.Equal(t, "admin", payload.Role)
}

func TestOverdueSweepLogsNotices(t *testing.T) {
	cfg := testConfig(t.TempDir())
	mgr, hook := openManager(t, cfg)
	defer mgr.Close()

	acct, err := mgr.RegisterMember(Profile{Email: "a@x"}, "secret1", RoleMember)
	require.NoError(t, err)
	_, err = mgr.AddBook(BookFields{ISBN: "1", Title: "Dune"}, 1)
	require.NoError(t, err)
	_, err = mgr.BorrowByISBN(acct.ID, "1", 0)
	require.NoError(t, err)

	hook.Reset()
	notices := mgr.OverdueSweep(20)
	require.Len(t, notices, 1)
	assert.Equal(t, 6, notices[0].Days)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "overdue", hook.LastEntry().Message)
	assert.Equal(t, 6, hook.LastEntry().Data["days"])
}

func TestImportRecords(t *testing.T) {
	mgr := newManager(t)

	books := strings.Join([]string{
		"978-1|Dune|Frank Herbert|SciFi|1965|412|A-1|2",
		"broken line",
		"",
		"978-2|Emma|Jane Austen|Novel|1815|300|B-2|1",
	}, "\n")
	n, bad, err := mgr.ImportBooks(strings.NewReader(books))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, bad, 1)
	assert.Equal(t, 2, bad[0].Line)
	assert.Len(t, mgr.Catalog().Copies(), 3)
	assert.Equal(t, []Book{mgr.Catalog().Books()[1]}, mgr.SearchBooks(SearchQuery{Author: "Jane Austen"}))

	users := strings.Join([]string{
		"Admin|01/01/1980|3|Server|0000|admin|123456|1|2",
		"Alice|02/02/1990|2|Main St|555|alice@x|secret1|2|0",
		"Dup|02/02/1990|1|Main St|555|alice@x|secret1|1|0",
		"Weak|02/02/1990|1|Main St|555|weak@x|123|1|0",
	}, "\n")
	n, bad, err = mgr.ImportMembers(strings.NewReader(users))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, bad, 2)
	assert.ErrorIs(t, bad[0].Err, ErrDuplicateEmail)
	assert.ErrorIs(t, bad[1].Err, ErrWeakPassword)

	assert.True(t, mgr.Roles().HasAdmin())
	alice, err := mgr.Authenticate("alice@x", "secret1")
	require.NoError(t, err)
	assert.Equal(t, PreferPostalMail, alice.Preference)
	assert.NotEqual(t, "secret1", alice.PasswordHash)
}

func TestPasswordAndProfileChangesPersist(t *testing.T) {
	cfg := testConfig(t.TempDir())
	mgr, _ := openManager(t, cfg)
	acct, err := mgr.RegisterMember(Profile{FullName: "A", Email: "a@x"}, "secret1", RoleMember)
	require.NoError(t, err)
	require.NoError(t, mgr.ChangePassword(acct.ID, "secret2"))
	require.NoError(t, mgr.UpdateProfile(acct.ID, "Alice", "Elm St", "555"))
	require.NoError(t, mgr.Close())

	mgr, _ = openManager(t, cfg)
	defer mgr.Close()
	_, err = mgr.Authenticate("a@x", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	got, err := mgr.Authenticate("a@x", "secret2")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FullName)
	assert.Equal(t, "Elm St", got.Address)

	require.NoError(t, mgr.ForgotPassword("a@x", "secret3"))
	_, err = mgr.Authenticate("a@x", "secret3")
	assert.NoError(t, err)
}

func TestConcurrentBorrowsAllPersist(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Policy.MaxBorrowed = 1
	mgr, _ := openManager(t, cfg)

	const n = 40
	book, err := mgr.AddBook(BookFields{ISBN: "1", Title: "Dune"}, n)
	require.NoError(t, err)
	copies := mgr.Catalog().CopiesOf(book.ID)
	ids := make([]int64, n)
	for i := range ids {
		acct, err := mgr.RegisterMember(Profile{Email: fmt.Sprintf("m%d@x", i)}, "secret1", RoleMember)
		require.NoError(t, err)
		ids[i] = acct.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := mgr.Borrow(ids[i], []int64{copies[i].ID}, 0)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, mgr.Close())

	mgr, _ = openManager(t, cfg)
	defer mgr.Close()
	assert.Len(t, mgr.Lending().Loans(), n)
	assert.Zero(t, mgr.CountAvailableCopies(book.ID))
	for _, id := range ids {
		assert.Equal(t, 1, mgr.Lending().ActiveCopyCount(id))
	}
}

func TestLastAdminCannotBeDemoted(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.RegisterMember(Profile{Email: "admin@x"}, "secret1", RoleAdmin)
	require.NoError(t, err)
	_, err = mgr.RegisterMember(Profile{Email: "lib@x"}, "secret1", RoleLibrarian)
	require.NoError(t, err)

	err = mgr.SetRole("admin@x", RoleLibrarian)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, RoleAdmin, mgr.Roles().Get("admin@x"))

	require.NoError(t, mgr.SetRole("lib@x", RoleAdmin))
	require.NoError(t, mgr.SetRole("admin@x", RoleMember))
	assert.True(t, mgr.Roles().HasAdmin())
	assert.ErrorIs(t, mgr.SetRole("lib@x", RoleMember), ErrInvalidInput)
}

func TestFailedCommitLogsNoSuccess(t *testing.T) {
	mgr, hook := openManager(t, testConfig(t.TempDir()))
	acct, err := mgr.RegisterMember(Profile{Email: "a@x"}, "secret1", RoleMember)
	require.NoError(t, err)
	book, err := mgr.AddBook(BookFields{ISBN: "1", Title: "Dune"}, 1)
	require.NoError(t, err)
	require.NoError(t, mgr.db.Close())

	hook.Reset()
	assert.Error(t, mgr.UpdateProfile(acct.ID, "Alice", "", ""))
	assert.Error(t, mgr.ChangePassword(acct.ID, "secret2"))
	assert.Error(t, mgr.EditBook(book.ID, BookFields{Title: "Emma"}))
	assert.Error(t, mgr.RemoveBook(book.ID))
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.InfoLevel, e.Level, e.Message)
	}
}
