package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"library-lending/library"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// app carries what every subcommand needs once the root pre-run has opened
// the library.
type app struct {
	cfg   library.Config
	log   *logrus.Logger
	mgr   *library.LibraryManager
	user  string
	today string
}

func main() {
	cfg, err := library.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading configuration: %v\n", err)
		os.Exit(1)
	}

	a := &app{cfg: cfg}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Library lending and inventory",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfg.DBPath, "db", a.cfg.DBPath, "SQLite database file")
	f.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (debug, info, warn, error)")
	f.IntVar(&a.cfg.Policy.MaxBorrowed, "max-borrowed", a.cfg.Policy.MaxBorrowed, "copies a member may hold at once")
	f.IntVar(&a.cfg.Policy.MaxRenewals, "max-renewals", a.cfg.Policy.MaxRenewals, "renewals allowed per loan")
	f.IntVar(&a.cfg.Policy.LoanPeriodDays, "loan-days", a.cfg.Policy.LoanPeriodDays, "loan period in days")
	f.Float64Var(&a.cfg.Policy.FinePerDay, "fine-per-day", a.cfg.Policy.FinePerDay, "fine per late day")
	f.StringVarP(&a.user, "user", "u", "", "email of the acting account")
	f.StringVar(&a.today, "today", "", "override today's date (YYYY-MM-DD)")

	root.AddCommand(
		newMemberCmd(a),
		newBookCmd(a),
		newLoanCmd(a),
		newNoticesCmd(a),
		newRoleCmd(a),
		newAuditCmd(a),
	)
	return root
}

func (a *app) open() error {
	logger, err := library.NewLogger(a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	a.log = logger

	mgr, err := library.NewLibraryManager(a.cfg, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.mgr = mgr
	return nil
}

func (a *app) close() error {
	if a.mgr == nil {
		return nil
	}
	err := a.mgr.Close()
	a.mgr = nil
	return err
}

// day resolves --today, defaulting to the current date.
func (a *app) day() (int, error) {
	if a.today == "" {
		return library.Today(), nil
	}
	t, err := time.Parse("2006-01-02", a.today)
	if err != nil {
		return 0, fmt.Errorf("invalid --today %q: %w", a.today, err)
	}
	return library.DayOf(t), nil
}

// login authenticates --user and checks that its role is at least need.
func (a *app) login(need library.Role) (*library.MemberAccount, error) {
	if a.user == "" {
		return nil, fmt.Errorf("this command needs --user")
	}
	password, err := readPassword("LIBRARY_PASSWORD", fmt.Sprintf("Password for %s: ", a.user))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	acct, err := a.mgr.Authenticate(a.user, password)
	if err != nil {
		return nil, err
	}
	if role := a.mgr.Roles().Get(acct.Email); role < need {
		return nil, fmt.Errorf("%s is a %s; this command needs %s", acct.Email, role, need)
	}
	return acct, nil
}

// readPassword securely reads a password with masking. envKey, when set in
// the environment, is used instead so the CLI can run unattended.
func readPassword(envKey, prompt string) (string, error) {
	if v, ok := os.LookupEnv(envKey); ok {
		return v, nil
	}
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

func formatDay(day int) string {
	if day == 0 {
		return "-"
	}
	return library.DateOf(day).Format("2006-01-02")
}
