package library

import (
	"errors"
	"fmt"
)

// Kind classifies a refused operation so callers can branch without
// matching on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindDuplicateEmail
	KindWeakPassword
	KindInvalidCredentials
	KindCopyUnavailable
	KindBorrowLimitExceeded
	KindRenewalLimitExceeded
	KindLoanNotActive
	KindBookOnLoan
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindInvalidInput:         "invalid input",
	KindNotFound:             "not found",
	KindDuplicateEmail:       "duplicate email",
	KindWeakPassword:         "weak password",
	KindInvalidCredentials:   "invalid credentials",
	KindCopyUnavailable:      "copy unavailable",
	KindBorrowLimitExceeded:  "borrow limit exceeded",
	KindRenewalLimitExceeded: "renewal limit exceeded",
	KindLoanNotActive:        "loan not active",
	KindBookOnLoan:           "book on loan",
}

func (k Kind) String() string { return kindNames[k] }

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrDuplicateEmail       = &Error{Kind: KindDuplicateEmail}
	ErrWeakPassword         = &Error{Kind: KindWeakPassword}
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials}
	ErrCopyUnavailable      = &Error{Kind: KindCopyUnavailable}
	ErrBorrowLimitExceeded  = &Error{Kind: KindBorrowLimitExceeded}
	ErrRenewalLimitExceeded = &Error{Kind: KindRenewalLimitExceeded}
	ErrLoanNotActive        = &Error{Kind: KindLoanNotActive}
	ErrBookOnLoan           = &Error{Kind: KindBookOnLoan}
)

// Error is returned by every refused core operation. A refused operation
// never leaves partial effects behind.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Msg == "":
		return e.Kind.String()
	case e.Op == "":
		return e.Msg
	case e.Msg == "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Is matches on Kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
