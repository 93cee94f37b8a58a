package library

// NoticeKind distinguishes reminder notices.
type NoticeKind int

const (
	NoticeDueSoon NoticeKind = iota
	NoticeOverdue
)

func (k NoticeKind) String() string {
	if k == NoticeOverdue {
		return "overdue"
	}
	return "due soon"
}

// dueSoonDays is the exact distance to the due date that triggers a
// due-soon reminder.
const dueSoonDays = 2

// Notice is one reminder produced by OverdueSweep.
type Notice struct {
	Kind       NoticeKind             `json:"kind"`
	LoanID     int64                  `json:"loan_id"`
	MemberID   int64                  `json:"member_id"`
	DueDate    int                    `json:"due_date"`
	Days       int                    `json:"days"` // days left for DueSoon, days late for Overdue
	Preference NotificationPreference `json:"preference"`
}

// OverdueSweep lists reminders for Active loans: a due-soon notice when the
// loan is due in exactly two days and an overdue notice when it is past due.
// It is read-only; loan status only changes through ReturnLoan.
func (l *Lending) OverdueSweep(today int) []Notice {
	l.mu.Lock()
	var notices []Notice
	for _, loan := range l.loans {
		if !loan.IsActive() {
			continue
		}
		daysToDue := loan.DueDate - today
		switch {
		case daysToDue == dueSoonDays:
			notices = append(notices, Notice{Kind: NoticeDueSoon, LoanID: loan.ID, MemberID: loan.MemberID, DueDate: loan.DueDate, Days: daysToDue})
		case daysToDue < 0:
			notices = append(notices, Notice{Kind: NoticeOverdue, LoanID: loan.ID, MemberID: loan.MemberID, DueDate: loan.DueDate, Days: -daysToDue})
		}
	}
	l.mu.Unlock()

	for i := range notices {
		if acct, err := l.members.Member(notices[i].MemberID); err == nil {
			notices[i].Preference = acct.Preference
		}
	}
	return notices
}
