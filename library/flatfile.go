package library

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Legacy flat files hold one '|' delimited record per line:
//
//	data.txt:  isbn|title|author|subject|year|pages|rackPosition|copyCount
//	users.txt: name|dob|genderCode|address|phone|email|password|prefCode|roleCode
//
// Copy identity, availability and loans are not part of the format, so an
// import always produces fresh, available copies.
const (
	legacyLanguage    = "Vietnamese"
	legacyDescription = "Imported"
)

// BookRecord is one decoded line of data.txt.
type BookRecord struct {
	Fields BookFields
	Copies int
}

// MemberRecord is one decoded line of users.txt. Password is the raw secret
// from the file; it is hashed on registration and never written back.
type MemberRecord struct {
	Profile  Profile
	Password string
	Role     Role
}

// ParseBookRecord decodes a data.txt line.
func ParseBookRecord(line string) (BookRecord, error) {
	f := strings.Split(line, "|")
	if len(f) < 8 {
		return BookRecord{}, fmt.Errorf("book record: want 8 fields, got %d", len(f))
	}
	year, err := strconv.Atoi(strings.TrimSpace(f[4]))
	if err != nil {
		return BookRecord{}, fmt.Errorf("book record: year: %w", err)
	}
	pages, err := strconv.Atoi(strings.TrimSpace(f[5]))
	if err != nil {
		return BookRecord{}, fmt.Errorf("book record: pages: %w", err)
	}
	copies, err := strconv.Atoi(strings.TrimSpace(f[7]))
	if err != nil {
		return BookRecord{}, fmt.Errorf("book record: copy count: %w", err)
	}
	if copies < 0 {
		return BookRecord{}, fmt.Errorf("book record: negative copy count %d", copies)
	}
	return BookRecord{
		Fields: BookFields{
			ISBN:         f[0],
			Title:        f[1],
			Author:       f[2],
			Subject:      f[3],
			Year:         year,
			Language:     legacyLanguage,
			Pages:        pages,
			RackPosition: f[6],
			Description:  legacyDescription,
		},
		Copies: copies,
	}, nil
}

// ParseMemberRecord decodes a users.txt line.
func ParseMemberRecord(line string) (MemberRecord, error) {
	f := strings.Split(line, "|")
	if len(f) < 9 {
		return MemberRecord{}, fmt.Errorf("member record: want 9 fields, got %d", len(f))
	}
	genderCode, err := strconv.Atoi(strings.TrimSpace(f[2]))
	if err != nil {
		return MemberRecord{}, fmt.Errorf("member record: gender: %w", err)
	}
	prefCode, err := strconv.Atoi(strings.TrimSpace(f[7]))
	if err != nil {
		return MemberRecord{}, fmt.Errorf("member record: preference: %w", err)
	}
	role, err := ParseRole(strings.TrimSpace(f[8]))
	if err != nil {
		return MemberRecord{}, fmt.Errorf("member record: %w", err)
	}

	gender := GenderOther
	switch genderCode {
	case 1:
		gender = GenderMale
	case 2:
		gender = GenderFemale
	}
	pref := PreferEmail
	if prefCode == 2 {
		pref = PreferPostalMail
	}

	return MemberRecord{
		Profile: Profile{
			FullName:    f[0],
			DateOfBirth: f[1],
			Gender:      gender,
			Address:     f[3],
			Phone:       f[4],
			Email:       f[5],
			Preference:  pref,
		},
		Password: f[6],
		Role:     role,
	}, nil
}

// LineError reports a record that could not be decoded or applied.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

// scanRecords calls fn for every non-empty line of r. Errors from fn are
// collected per line and do not stop the scan.
func scanRecords(r io.Reader, fn func(line string) error) ([]LineError, error) {
	var bad []LineError
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(line); err != nil {
			bad = append(bad, LineError{Line: n, Err: err})
		}
	}
	return bad, sc.Err()
}
