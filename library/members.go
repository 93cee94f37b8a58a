package library

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Members holds member accounts, checks credentials and issues library
// cards. Accounts are never deleted.
type Members struct {
	mu sync.RWMutex

	members []*MemberAccount
	byEmail map[string]*MemberAccount
	nextID  int64

	minPasswordLength int
	hashCost          int
	now               func() time.Time
}

// NewMembers returns an empty membership store enforcing minPasswordLength.
func NewMembers(minPasswordLength int) *Members {
	return &Members{
		byEmail:           make(map[string]*MemberAccount),
		nextID:            1,
		minPasswordLength: minPasswordLength,
		hashCost:          bcrypt.DefaultCost,
		now:               time.Now,
	}
}

func (m *Members) hash(raw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(raw), m.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (m *Members) checkStrength(op, raw string) error {
	if len(raw) < m.minPasswordLength {
		return newError(KindWeakPassword, op, "password must be at least %d characters", m.minPasswordLength)
	}
	return nil
}

// Register creates a member and issues an active card numbered CARD-<id>.
// Emails are matched exactly.
func (m *Members) Register(p Profile, rawPassword string) (*MemberAccount, error) {
	const op = "register"
	if strings.TrimSpace(p.Email) == "" {
		return nil, newError(KindInvalidInput, op, "email is required")
	}
	if m.emailTaken(p.Email) {
		return nil, newError(KindDuplicateEmail, op, "email %q is already registered", p.Email)
	}
	if err := m.checkStrength(op, rawPassword); err != nil {
		return nil, err
	}
	hash, err := m.hash(rawPassword)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[p.Email]; ok {
		return nil, newError(KindDuplicateEmail, op, "email %q is already registered", p.Email)
	}

	acct := &MemberAccount{
		ID:           m.nextID,
		Profile:      p,
		PasswordHash: hash,
		Card: LibraryCard{
			Number:     fmt.Sprintf("CARD-%d", m.nextID),
			IssuedDate: m.now().Format("2006-01-02"),
			Active:     true,
		},
	}
	m.nextID++
	m.members = append(m.members, acct)
	m.byEmail[acct.Email] = acct

	out := *acct
	return &out, nil
}

// Authenticate succeeds only for a known email whose stored hash matches.
func (m *Members) Authenticate(email, rawPassword string) (*MemberAccount, error) {
	m.mu.RLock()
	acct, ok := m.byEmail[email]
	var hash string
	if ok {
		hash = acct.PasswordHash
	}
	m.mu.RUnlock()

	if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawPassword)) != nil {
		return nil, newError(KindInvalidCredentials, "authenticate", "invalid email or password")
	}
	return m.Member(acct.ID)
}

// ChangePassword replaces the member's credential.
func (m *Members) ChangePassword(memberID int64, newPassword string) error {
	const op = "change password"
	if err := m.checkStrength(op, newPassword); err != nil {
		return err
	}
	hash, err := m.hash(newPassword)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	acct := m.find(memberID)
	if acct == nil {
		return newError(KindNotFound, op, "member %d not found", memberID)
	}
	acct.PasswordHash = hash
	return nil
}

// ForgotPassword resets the credential of the account registered under
// email. The email is the only proof of identity.
func (m *Members) ForgotPassword(email, newPassword string) error {
	const op = "forgot password"
	m.mu.RLock()
	acct, ok := m.byEmail[email]
	m.mu.RUnlock()
	if !ok {
		return newError(KindNotFound, op, "email %q is not registered", email)
	}
	if err := m.ChangePassword(acct.ID, newPassword); err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.Op = op
		}
		return err
	}
	return nil
}

// UpdateProfile overwrites name, address and phone.
func (m *Members) UpdateProfile(memberID int64, fullName, address, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct := m.find(memberID)
	if acct == nil {
		return newError(KindNotFound, "update profile", "member %d not found", memberID)
	}
	acct.FullName = fullName
	acct.Address = address
	acct.Phone = phone
	return nil
}

// Member returns a copy of the account.
func (m *Members) Member(memberID int64) (*MemberAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct := m.find(memberID)
	if acct == nil {
		return nil, newError(KindNotFound, "get member", "member %d not found", memberID)
	}
	out := *acct
	return &out, nil
}

// MemberByEmail looks an account up by exact email.
func (m *Members) MemberByEmail(email string) (*MemberAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.byEmail[email]
	if !ok {
		return nil, newError(KindNotFound, "get member", "email %q is not registered", email)
	}
	out := *acct
	return &out, nil
}

// All lists members in registration order.
func (m *Members) All() []MemberAccount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MemberAccount, 0, len(m.members))
	for _, acct := range m.members {
		out = append(out, *acct)
	}
	return out
}

func (m *Members) emailTaken(email string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byEmail[email]
	return ok
}

func (m *Members) exists(memberID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.find(memberID) != nil
}

func (m *Members) find(id int64) *MemberAccount {
	for _, acct := range m.members {
		if acct.ID == id {
			return acct
		}
	}
	return nil
}

func (m *Members) restore(members []*MemberAccount, nextID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = members
	m.byEmail = make(map[string]*MemberAccount, len(members))
	for _, acct := range members {
		m.byEmail[acct.Email] = acct
	}
	m.nextID = nextID
}

func (m *Members) counter() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextID
}
