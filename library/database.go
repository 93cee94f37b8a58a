package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database persists full library snapshots in SQLite. Unlike the legacy
// flat files it keeps copy identity, availability, loans, id counters and
// only ever stores password hashes.
type Database struct {
	db *sqlx.DB

	appendEventStmt *sqlx.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Enable busy_timeout and foreign keys.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.appendEventStmt != nil {
		d.appendEventStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
            id INTEGER PRIMARY KEY,
            full_name TEXT NOT NULL,
            date_of_birth TEXT NOT NULL DEFAULT '',
            gender INTEGER NOT NULL DEFAULT 0,
            address TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            preference INTEGER NOT NULL DEFAULT 0,
            card_number TEXT NOT NULL,
            card_issued TEXT NOT NULL,
            card_active BOOLEAN NOT NULL DEFAULT 1
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY,
            isbn TEXT NOT NULL,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            subject TEXT NOT NULL,
            year INTEGER NOT NULL,
            language TEXT NOT NULL,
            pages INTEGER NOT NULL,
            rack_position TEXT NOT NULL,
            description TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS book_items (
            id INTEGER PRIMARY KEY,
            book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            barcode TEXT NOT NULL,
            available BOOLEAN NOT NULL DEFAULT 1,
            location TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            id INTEGER PRIMARY KEY,
            member_id INTEGER NOT NULL REFERENCES members(id),
            borrow_date INTEGER NOT NULL,
            due_date INTEGER NOT NULL,
            return_date INTEGER NOT NULL DEFAULT 0,
            renewal_count INTEGER NOT NULL DEFAULT 0,
            status INTEGER NOT NULL DEFAULT 0,
            fine REAL NOT NULL DEFAULT 0
        );`,
		// copy_id is not a foreign key: closed loans outlive removed books.
		`CREATE TABLE IF NOT EXISTS loan_items (
            loan_id INTEGER NOT NULL REFERENCES loans(id) ON DELETE CASCADE,
            position INTEGER NOT NULL,
            copy_id INTEGER NOT NULL,
            PRIMARY KEY (loan_id, position)
        );`,
		`CREATE TABLE IF NOT EXISTS reservations (
		    id INTEGER PRIMARY KEY,
		    member_id INTEGER NOT NULL REFERENCES members(id),
		    book_id INTEGER NOT NULL,
		    active BOOLEAN NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS roles (
            email TEXT PRIMARY KEY,
            role INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS audit_events (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            payload TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.appendEventStmt, err = d.db.Preparex(`INSERT INTO audit_events(id,kind,occurred_at,payload) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rows
// ---------------------------------------------------------------------------

type memberRow struct {
	ID           int64  `db:"id"`
	FullName     string `db:"full_name"`
	DateOfBirth  string `db:"date_of_birth"`
	Gender       int    `db:"gender"`
	Address      string `db:"address"`
	Phone        string `db:"phone"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Preference   int    `db:"preference"`
	CardNumber   string `db:"card_number"`
	CardIssued   string `db:"card_issued"`
	CardActive   bool   `db:"card_active"`
}

type bookRow struct {
	ID           int64  `db:"id"`
	ISBN         string `db:"isbn"`
	Title        string `db:"title"`
	Author       string `db:"author"`
	Subject      string `db:"subject"`
	Year         int    `db:"year"`
	Language     string `db:"language"`
	Pages        int    `db:"pages"`
	RackPosition string `db:"rack_position"`
	Description  string `db:"description"`
}

type copyRow struct {
	ID        int64  `db:"id"`
	BookID    int64  `db:"book_id"`
	Barcode   string `db:"barcode"`
	Available bool   `db:"available"`
	Location  string `db:"location"`
}

type loanRow struct {
	ID           int64   `db:"id"`
	MemberID     int64   `db:"member_id"`
	BorrowDate   int     `db:"borrow_date"`
	DueDate      int     `db:"due_date"`
	ReturnDate   int     `db:"return_date"`
	RenewalCount int     `db:"renewal_count"`
	Status       int     `db:"status"`
	Fine         float64 `db:"fine"`
}

type loanItemRow struct {
	LoanID   int64 `db:"loan_id"`
	Position int   `db:"position"`
	CopyID   int64 `db:"copy_id"`
}

type reservationRow struct {
	ID       int64 `db:"id"`
	MemberID int64 `db:"member_id"`
	BookID   int64 `db:"book_id"`
	Active   bool  `db:"active"`
}

// Snapshot is the complete persisted state of a library.
type Snapshot struct {
	Members      []*MemberAccount
	Books        []*Book
	Copies       []*BookItem
	Loans        []*Loan
	Reservations []*Reservation
	Roles        []RoleEntry

	NextMemberID      int64
	NextBookID        int64
	NextCopyID        int64
	NextLoanID        int64
	NextReservationID int64
}

var counterKeys = []string{"next_member_id", "next_book_id", "next_copy_id", "next_loan_id", "next_reservation_id"}

func (s *Snapshot) counterPtrs() []*int64 {
	return []*int64{&s.NextMemberID, &s.NextBookID, &s.NextCopyID, &s.NextLoanID, &s.NextReservationID}
}

// ---------------------------------------------------------------------------
// Load / save
// ---------------------------------------------------------------------------

// LoadSnapshot reads the whole library. A fresh database yields an empty
// snapshot with every counter at 1.
func (d *Database) LoadSnapshot() (*Snapshot, error) {
	tx, err := d.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	s := &Snapshot{}
	for i, key := range counterKeys {
		ptr := s.counterPtrs()[i]
		var v string
		err := tx.QueryRow(`SELECT value FROM meta WHERE key=?`, key).Scan(&v)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			*ptr = 1
		case err != nil:
			return nil, fmt.Errorf("load %s: %w", key, err)
		default:
			if *ptr, err = strconv.ParseInt(v, 10, 64); err != nil {
				return nil, fmt.Errorf("load %s: %w", key, err)
			}
		}
	}

	var members []memberRow
	if err := tx.Select(&members, `SELECT * FROM members ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	for _, r := range members {
		s.Members = append(s.Members, &MemberAccount{
			ID: r.ID,
			Profile: Profile{
				FullName:    r.FullName,
				DateOfBirth: r.DateOfBirth,
				Gender:      Gender(r.Gender),
				Address:     r.Address,
				Phone:       r.Phone,
				Email:       r.Email,
				Preference:  NotificationPreference(r.Preference),
			},
			PasswordHash: r.PasswordHash,
			Card:         LibraryCard{Number: r.CardNumber, IssuedDate: r.CardIssued, Active: r.CardActive},
		})
	}

	var books []bookRow
	if err := tx.Select(&books, `SELECT * FROM books ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	for _, r := range books {
		s.Books = append(s.Books, &Book{ID: r.ID, BookFields: BookFields{
			ISBN:         r.ISBN,
			Title:        r.Title,
			Author:       r.Author,
			Subject:      r.Subject,
			Year:         r.Year,
			Language:     r.Language,
			Pages:        r.Pages,
			RackPosition: r.RackPosition,
			Description:  r.Description,
		}})
	}

	var copies []copyRow
	if err := tx.Select(&copies, `SELECT * FROM book_items ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load copies: %w", err)
	}
	for _, r := range copies {
		s.Copies = append(s.Copies, &BookItem{ID: r.ID, BookID: r.BookID, Barcode: r.Barcode, Available: r.Available, Location: r.Location})
	}

	var loans []loanRow
	if err := tx.Select(&loans, `SELECT * FROM loans ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	var items []loanItemRow
	if err := tx.Select(&items, `SELECT * FROM loan_items ORDER BY loan_id, position`); err != nil {
		return nil, fmt.Errorf("load loan items: %w", err)
	}
	copyIDs := make(map[int64][]int64, len(loans))
	for _, it := range items {
		copyIDs[it.LoanID] = append(copyIDs[it.LoanID], it.CopyID)
	}
	for _, r := range loans {
		s.Loans = append(s.Loans, &Loan{
			ID:           r.ID,
			MemberID:     r.MemberID,
			CopyIDs:      copyIDs[r.ID],
			BorrowDate:   r.BorrowDate,
			DueDate:      r.DueDate,
			ReturnDate:   r.ReturnDate,
			RenewalCount: r.RenewalCount,
			Status:       LoanStatus(r.Status),
			Fine:         r.Fine,
		})
	}

	var reservations []reservationRow
	if err := tx.Select(&reservations, `SELECT * FROM reservations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	for _, r := range reservations {
		s.Reservations = append(s.Reservations, &Reservation{ID: r.ID, MemberID: r.MemberID, BookID: r.BookID, Active: r.Active})
	}

	if err := tx.Select(&s.Roles, `SELECT email, role FROM roles ORDER BY email`); err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return s, nil
}

// SaveSnapshot replaces the stored state with s and appends ev to the audit
// trail in the same transaction. ev may be nil.
func (d *Database) SaveSnapshot(s *Snapshot, ev *AuditEvent) error {
	tx, err := d.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"loan_items", "loans", "reservations", "book_items", "books", "members", "roles"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, m := range s.Members {
		if _, err := tx.NamedExec(`INSERT INTO members(id,full_name,date_of_birth,gender,address,phone,email,password_hash,preference,card_number,card_issued,card_active)
            VALUES(:id,:full_name,:date_of_birth,:gender,:address,:phone,:email,:password_hash,:preference,:card_number,:card_issued,:card_active)`,
			memberRow{
				ID:           m.ID,
				FullName:     m.FullName,
				DateOfBirth:  m.DateOfBirth,
				Gender:       int(m.Gender),
				Address:      m.Address,
				Phone:        m.Phone,
				Email:        m.Email,
				PasswordHash: m.PasswordHash,
				Preference:   int(m.Preference),
				CardNumber:   m.Card.Number,
				CardIssued:   m.Card.IssuedDate,
				CardActive:   m.Card.Active,
			}); err != nil {
			return fmt.Errorf("save member %d: %w", m.ID, err)
		}
	}

	for _, b := range s.Books {
		if _, err := tx.NamedExec(`INSERT INTO books(id,isbn,title,author,subject,year,language,pages,rack_position,description)
            VALUES(:id,:isbn,:title,:author,:subject,:year,:language,:pages,:rack_position,:description)`,
			bookRow{
				ID:           b.ID,
				ISBN:         b.ISBN,
				Title:        b.Title,
				Author:       b.Author,
				Subject:      b.Subject,
				Year:         b.Year,
				Language:     b.Language,
				Pages:        b.Pages,
				RackPosition: b.RackPosition,
				Description:  b.Description,
			}); err != nil {
			return fmt.Errorf("save book %d: %w", b.ID, err)
		}
	}

	for _, c := range s.Copies {
		if _, err := tx.NamedExec(`INSERT INTO book_items(id,book_id,barcode,available,location) VALUES(:id,:book_id,:barcode,:available,:location)`,
			copyRow{ID: c.ID, BookID: c.BookID, Barcode: c.Barcode, Available: c.Available, Location: c.Location}); err != nil {
			return fmt.Errorf("save copy %d: %w", c.ID, err)
		}
	}

	for _, l := range s.Loans {
		if _, err := tx.NamedExec(`INSERT INTO loans(id,member_id,borrow_date,due_date,return_date,renewal_count,status,fine)
            VALUES(:id,:member_id,:borrow_date,:due_date,:return_date,:renewal_count,:status,:fine)`,
			loanRow{
				ID:           l.ID,
				MemberID:     l.MemberID,
				BorrowDate:   l.BorrowDate,
				DueDate:      l.DueDate,
				ReturnDate:   l.ReturnDate,
				RenewalCount: l.RenewalCount,
				Status:       int(l.Status),
				Fine:         l.Fine,
			}); err != nil {
			return fmt.Errorf("save loan %d: %w", l.ID, err)
		}
		for pos, copyID := range l.CopyIDs {
			if _, err := tx.Exec(`INSERT INTO loan_items(loan_id,position,copy_id) VALUES(?,?,?)`, l.ID, pos, copyID); err != nil {
				return fmt.Errorf("save loan %d items: %w", l.ID, err)
			}
		}
	}

	for _, r := range s.Reservations {
		if _, err := tx.Exec(`INSERT INTO reservations(id,member_id,book_id,active) VALUES(?,?,?,?)`, r.ID, r.MemberID, r.BookID, r.Active); err != nil {
			return fmt.Errorf("save reservation %d: %w", r.ID, err)
		}
	}

	for _, e := range s.Roles {
		if _, err := tx.Exec(`INSERT INTO roles(email,role) VALUES(?,?)`, e.Email, e.Role); err != nil {
			return fmt.Errorf("save role for %s: %w", e.Email, err)
		}
	}

	for i, key := range counterKeys {
		if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES(?,?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, strconv.FormatInt(*s.counterPtrs()[i], 10)); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}

	if ev != nil {
		if err := d.appendEvent(tx, ev); err != nil {
			return err
		}
	}
	return tx.Commit()
}
