package main

import (
	"fmt"
	"strings"

	"library-lending/library"

	"github.com/spf13/cobra"
)

func newNoticesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "notices",
		Short: "List due-soon and overdue reminders for today (librarian)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.login(library.RoleLibrarian); err != nil {
				return err
			}
			today, err := a.day()
			if err != nil {
				return err
			}
			notices := a.mgr.OverdueSweep(today)
			if len(notices) == 0 {
				fmt.Println("Nothing to send.")
				return nil
			}
			fmt.Printf("%-9s %-5s %-25s %-11s %-5s %s\n", "Kind", "Loan", "Member", "Due", "Days", "Via")
			fmt.Println(strings.Repeat("-", 75))
			for _, n := range notices {
				who := fmt.Sprint(n.MemberID)
				if m, err := a.mgr.Members().Member(n.MemberID); err == nil {
					who = m.Email
				}
				fmt.Printf("%-9s %-5d %-25s %-11s %-5d %s\n", n.Kind, n.LoanID, library.TruncateString(who, 25), formatDay(n.DueDate), n.Days, n.Preference)
			}
			return nil
		},
	}
}

func newRoleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "role", Short: "Manage staff roles (admin)"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <email> <member|librarian|admin>",
			Short: "Assign a role to an account",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				role, err := library.ParseRole(args[1])
				if err != nil {
					return err
				}
				if _, err := a.login(library.RoleAdmin); err != nil {
					return err
				}
				if err := a.mgr.SetRole(args[0], role); err != nil {
					return err
				}
				fmt.Printf("%s is now %s.\n", args[0], role)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List accounts holding a role",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.login(library.RoleAdmin); err != nil {
					return err
				}
				for _, e := range a.mgr.Roles().Entries() {
					fmt.Printf("%-30s %s\n", e.Email, e.Role)
				}
				return nil
			},
		},
	)
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the most recent committed changes (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.login(library.RoleAdmin); err != nil {
				return err
			}
			events, err := a.mgr.AuditEvents(limit)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Printf("%s  %-17s %s\n", ev.OccurredAt.Local().Format("2006-01-02 15:04:05"), ev.Kind, library.TruncateString(string(ev.Payload), 80))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events (0 for all)")
	return cmd
}
