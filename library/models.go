package library

// Gender is recorded on the member profile only.
type Gender int

const (
	GenderOther Gender = iota
	GenderMale
	GenderFemale
)

// NotificationPreference selects how reminders reach a member.
type NotificationPreference int

const (
	PreferEmail NotificationPreference = iota
	PreferPostalMail
)

func (p NotificationPreference) String() string {
	if p == PreferPostalMail {
		return "postal mail"
	}
	return "email"
}

// LoanStatus is the state of a Loan. Returned and Overdue are terminal.
type LoanStatus int

const (
	LoanActive LoanStatus = iota
	LoanReturned
	LoanOverdue
)

func (s LoanStatus) String() string {
	switch s {
	case LoanReturned:
		return "Returned"
	case LoanOverdue:
		return "Overdue"
	default:
		return "Active"
	}
}

// LibraryCard is issued once per member at registration.
type LibraryCard struct {
	Number     string `json:"number"`
	IssuedDate string `json:"issued_date"`
	Active     bool   `json:"active"`
}

// Profile holds the descriptive fields of a member.
type Profile struct {
	FullName    string                 `json:"full_name"`
	DateOfBirth string                 `json:"date_of_birth"`
	Gender      Gender                 `json:"gender"`
	Address     string                 `json:"address"`
	Phone       string                 `json:"phone"`
	Email       string                 `json:"email"`
	Preference  NotificationPreference `json:"preference"`
}

// MemberAccount represents a registered library member.
type MemberAccount struct {
	ID           int64 `json:"id"`
	Profile      `json:"profile"`
	PasswordHash string      `json:"-"` // Don't serialize password hash
	Card         LibraryCard `json:"card"`
}

// BookFields are the descriptive, caller-editable fields of a Book.
type BookFields struct {
	ISBN         string `json:"isbn"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Subject      string `json:"subject"`
	Year         int    `json:"year"`
	Language     string `json:"language"`
	Pages        int    `json:"pages"`
	RackPosition string `json:"rack_position"`
	Description  string `json:"description"`
}

// Book is a catalog title. Physical copies are BookItems.
type Book struct {
	ID int64 `json:"id"`
	BookFields
}

// BookItem is one physical copy of a Book.
// Available is only ever written by the Lending engine.
type BookItem struct {
	ID        int64  `json:"id"`
	BookID    int64  `json:"book_id"`
	Barcode   string `json:"barcode"`
	Available bool   `json:"available"`
	Location  string `json:"location"`
}

// Loan groups one or more copies lent to a member.
// Days are plain day numbers; see Today.
type Loan struct {
	ID           int64      `json:"id"`
	MemberID     int64      `json:"member_id"`
	CopyIDs      []int64    `json:"copy_ids"`
	BorrowDate   int        `json:"borrow_date"`
	DueDate      int        `json:"due_date"`
	ReturnDate   int        `json:"return_date"`
	RenewalCount int        `json:"renewal_count"`
	Status       LoanStatus `json:"status"`
	Fine         float64    `json:"fine"`
}

// IsActive reports whether the loan still holds its copies.
func (l *Loan) IsActive() bool { return l.Status == LoanActive }

// Reservation is part of the stored data model only. No operation creates
// or consumes reservations until a hold-queue policy exists.
type Reservation struct {
	ID       int64 `json:"id"`
	MemberID int64 `json:"member_id"`
	BookID   int64 `json:"book_id"`
	Active   bool  `json:"active"`
}
