package main

import (
	"fmt"
	"strings"

	"library-lending/library"

	"github.com/spf13/cobra"
)

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Register and manage member accounts"}
	cmd.AddCommand(
		newMemberRegisterCmd(a),
		&cobra.Command{
			Use:   "login",
			Short: "Check the --user credentials",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				acct, err := a.login(library.RoleMember)
				if err != nil {
					return err
				}
				fmt.Printf("Welcome, %s (%s). Card %s, role %s.\n", acct.FullName, acct.Email, acct.Card.Number, a.mgr.Roles().Get(acct.Email))
				return nil
			},
		},
		&cobra.Command{
			Use:   "passwd",
			Short: "Change the --user password",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				acct, err := a.login(library.RoleMember)
				if err != nil {
					return err
				}
				pw, err := readPassword("LIBRARY_NEW_PASSWORD", "New password: ")
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				if err := a.mgr.ChangePassword(acct.ID, pw); err != nil {
					return err
				}
				fmt.Println("Password changed.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "forgot <email>",
			Short: "Reset the password of an account by email",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pw, err := readPassword("LIBRARY_NEW_PASSWORD", fmt.Sprintf("New password for %s: ", args[0]))
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				if err := a.mgr.ForgotPassword(args[0], pw); err != nil {
					return err
				}
				fmt.Println("Password reset.")
				return nil
			},
		},
		newMemberUpdateCmd(a),
		&cobra.Command{
			Use:   "list",
			Short: "List members (librarian)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.login(library.RoleLibrarian); err != nil {
					return err
				}
				printMembers(a)
				return nil
			},
		},
	)
	return cmd
}

func newMemberRegisterCmd(a *app) *cobra.Command {
	var (
		p      library.Profile
		gender string
		postal bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new member and issue a library card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(gender) {
			case "male", "m":
				p.Gender = library.GenderMale
			case "female", "f":
				p.Gender = library.GenderFemale
			default:
				p.Gender = library.GenderOther
			}
			if postal {
				p.Preference = library.PreferPostalMail
			}

			pw, err := readPassword("LIBRARY_PASSWORD", fmt.Sprintf("Choose a password for %s: ", p.Email))
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}

			// With no admin yet the first account takes the role.
			role := library.RoleMember
			if !a.mgr.Roles().HasAdmin() {
				role = library.RoleAdmin
			}
			acct, err := a.mgr.RegisterMember(p, pw, role)
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s with ID %d, card %s (role %s).\n", acct.Email, acct.ID, acct.Card.Number, role)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.FullName, "name", "", "full name")
	f.StringVar(&p.Email, "email", "", "email (login name)")
	f.StringVar(&p.DateOfBirth, "dob", "", "date of birth")
	f.StringVar(&gender, "gender", "", "male, female or other")
	f.StringVar(&p.Address, "address", "", "postal address")
	f.StringVar(&p.Phone, "phone", "", "phone number")
	f.BoolVar(&postal, "postal", false, "send notices by postal mail instead of email")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newMemberUpdateCmd(a *app) *cobra.Command {
	var name, address, phone string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the --user profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := a.login(library.RoleMember)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("name") {
				name = acct.FullName
			}
			if !cmd.Flags().Changed("address") {
				address = acct.Address
			}
			if !cmd.Flags().Changed("phone") {
				phone = acct.Phone
			}
			if err := a.mgr.UpdateProfile(acct.ID, name, address, phone); err != nil {
				return err
			}
			fmt.Println("Profile updated.")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&address, "address", "", "postal address")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	return cmd
}

func printMembers(a *app) {
	members := a.mgr.Members().All()
	if len(members) == 0 {
		fmt.Println("No members.")
		return
	}
	fmt.Printf("%-5s %-25s %-30s %-12s %-10s %s\n", "ID", "Name", "Email", "Card", "Role", "On loan")
	fmt.Println(strings.Repeat("-", 100))
	for _, m := range members {
		fmt.Printf("%-5d %-25s %-30s %-12s %-10s %d\n",
			m.ID,
			library.TruncateString(m.FullName, 25),
			library.TruncateString(m.Email, 30),
			m.Card.Number,
			a.mgr.Roles().Get(m.Email),
			a.mgr.Lending().ActiveCopyCount(m.ID))
	}
}
