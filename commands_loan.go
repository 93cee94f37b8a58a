package main

import (
	"errors"
	"fmt"
	"strings"

	"library-lending/library"

	"github.com/spf13/cobra"
)

func newLoanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "loan", Short: "Borrow, return and renew"}
	cmd.AddCommand(
		newLoanBorrowCmd(a),
		&cobra.Command{
			Use:   "return <loan-id>",
			Short: "Return every copy of a loan",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if _, err := a.ownedLoan(id); err != nil {
					return err
				}
				today, err := a.day()
				if err != nil {
					return err
				}
				loan, err := a.mgr.ReturnLoan(id, today)
				if err != nil {
					return err
				}
				fmt.Printf("Loan %d closed as %s.", loan.ID, loan.Status)
				if loan.Fine > 0 {
					fmt.Printf(" Fine due: %.2f.", loan.Fine)
				}
				fmt.Println()
				return nil
			},
		},
		newLoanRenewCmd(a),
		newLoanListCmd(a),
		&cobra.Command{
			Use:   "fine <loan-id>",
			Short: "Show the fine a loan would incur if returned today",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if _, err := a.ownedLoan(id); err != nil {
					return err
				}
				today, err := a.day()
				if err != nil {
					return err
				}
				fine, err := a.mgr.Lending().AccruedFine(id, today)
				if err != nil {
					return err
				}
				fmt.Printf("Loan %d: %.2f accrued as of %s.\n", id, fine, formatDay(today))
				return nil
			},
		},
	)
	return cmd
}

// ownedLoan authenticates --user and checks that it holds the loan, unless
// it is staff.
func (a *app) ownedLoan(loanID int64) (*library.Loan, error) {
	acct, err := a.login(library.RoleMember)
	if err != nil {
		return nil, err
	}
	loan, err := a.mgr.Lending().Loan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.MemberID != acct.ID && a.mgr.Roles().Get(acct.Email) < library.RoleLibrarian {
		return nil, fmt.Errorf("loan %d belongs to another member", loanID)
	}
	return loan, nil
}

func newLoanBorrowCmd(a *app) *cobra.Command {
	var (
		copyIDs []int64
		isbn    string
		member  int64
	)
	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Borrow copies by id, or the first free copy of an ISBN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(copyIDs) == 0) == (isbn == "") {
				return errors.New("give either --copy or --isbn")
			}
			acct, err := a.login(library.RoleMember)
			if err != nil {
				return err
			}
			borrower := acct.ID
			if member != 0 && member != acct.ID {
				if a.mgr.Roles().Get(acct.Email) < library.RoleLibrarian {
					return errors.New("only librarians may borrow on behalf of another member")
				}
				borrower = member
			}
			today, err := a.day()
			if err != nil {
				return err
			}

			var loan *library.Loan
			if isbn != "" {
				loan, err = a.mgr.BorrowByISBN(borrower, isbn, today)
			} else {
				loan, err = a.mgr.Borrow(borrower, copyIDs, today)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Loan %d: %d copies, due %s.\n", loan.ID, len(loan.CopyIDs), formatDay(loan.DueDate))
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&copyIDs, "copy", nil, "copy id to borrow (repeatable)")
	cmd.Flags().StringVar(&isbn, "isbn", "", "borrow the first available copy of this ISBN")
	cmd.Flags().Int64Var(&member, "member", 0, "borrow for this member id (librarian)")
	return cmd
}

func newLoanRenewCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "renew <loan-id>",
		Short: "Extend the due date of an active loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.ownedLoan(id); err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = a.cfg.Policy.LoanPeriodDays
			}
			loan, err := a.mgr.RenewLoan(id, days)
			if err != nil {
				return err
			}
			fmt.Printf("Loan %d renewed (%d of %d), now due %s.\n", loan.ID, loan.RenewalCount, a.cfg.Policy.MaxRenewals, formatDay(loan.DueDate))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "days to add (defaults to the loan period)")
	return cmd
}

func newLoanListCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the --user loans, or every loan with --all (librarian)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			need := library.RoleMember
			if all {
				need = library.RoleLibrarian
			}
			acct, err := a.login(need)
			if err != nil {
				return err
			}
			loans := a.mgr.Lending().LoansOf(acct.ID)
			if all {
				loans = a.mgr.Lending().Loans()
			}
			if len(loans) == 0 {
				fmt.Println("No loans.")
				return nil
			}
			fmt.Printf("%-5s %-7s %-20s %-11s %-11s %-11s %-8s %-9s %s\n", "ID", "Member", "Copies", "Borrowed", "Due", "Returned", "Renewed", "Status", "Fine")
			fmt.Println(strings.Repeat("-", 100))
			for _, l := range loans {
				ids := make([]string, len(l.CopyIDs))
				for i, id := range l.CopyIDs {
					ids[i] = fmt.Sprint(id)
				}
				fmt.Printf("%-5d %-7d %-20s %-11s %-11s %-11s %-8d %-9s %.2f\n",
					l.ID, l.MemberID,
					library.TruncateString(strings.Join(ids, ","), 20),
					formatDay(l.BorrowDate), formatDay(l.DueDate), formatDay(l.ReturnDate),
					l.RenewalCount, l.Status, l.Fine)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every member's loans")
	return cmd
}
