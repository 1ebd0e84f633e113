package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"fasearch/pkg/auth"
	"fasearch/pkg/ui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored search API credentials",
	Long: `Manage stored search API profiles.

A profile holds an account name, stream label, user name and password.
Profiles are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (FASEARCH_USER_NAME, FASEARCH_PASSWORD, ...)

The most recently saved profile is used when no --account is given.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store credentials for a profile",
	Long: `Store search API credentials under a profile name. You will be prompted for
anything not given on the command line; the password is never echoed.`,
	Example: `  # Interactive login
  fasearch auth login

  # Store a named profile
  fasearch auth login archive -a myaccount -n prod -u me@example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove stored credentials",
	Long:  `Remove a stored profile, or every profile with --all.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored profiles",
	Long:  `List all stored profiles with masked passwords, default first.`,
	RunE:  runList,
}

// switchCmd represents the auth switch command
var switchCmd = &cobra.Command{
	Use:   "switch <profile>",
	Short: "Make a stored profile the default",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwitch,
}

var (
	loginAccount string
	loginLabel   string
	loginUser    string
	logoutAll    bool
)

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(switchCmd)

	loginCmd.Flags().StringVarP(&loginAccount, "address", "a", "", "account name")
	loginCmd.Flags().StringVarP(&loginLabel, "name", "n", "", "stream label")
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "user name")
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored profile")
}

// prompter reads answers from in and passwords without echo when in is a terminal
type prompter struct {
	reader *bufio.Reader
	in     *os.File
	out    io.Writer
}

func newPrompter() *prompter {
	return &prompter{reader: bufio.NewReader(os.Stdin), in: os.Stdin, out: ui.Output}
}

// ask prints label and returns the trimmed answer, or def when it is empty
func (p *prompter) ask(label, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	line, _ := p.reader.ReadString('\n')
	if line = strings.TrimSpace(line); line == "" {
		return def
	}
	return line
}

func (p *prompter) password(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if p.in != nil && term.IsTerminal(int(p.in.Fd())) {
		b, err := term.ReadPassword(int(p.in.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	p := newPrompter()
	ui.PrintHighlight("Store search API credentials")
	fmt.Fprintln(ui.Output)

	account := &auth.Account{}
	if len(args) > 0 {
		account.Name = args[0]
	}
	account.AccountName = loginAccount
	if account.AccountName == "" {
		account.AccountName = p.ask("Account name", "")
	}
	if account.Name == "" {
		account.Name = p.ask("Profile name", account.AccountName)
	}
	account.Label = loginLabel
	if account.Label == "" {
		account.Label = p.ask("Stream label", "prod")
	}
	account.Username = loginUser
	if account.Username == "" {
		account.Username = p.ask("User name", "")
	}

	pw, err := p.password("Password")
	if err != nil {
		return err
	}
	if pw == "" {
		return errors.New("password is required")
	}
	account.PasswordEncoded = auth.EncodePassword(pw)

	if err := manager.Store(account); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Profile saved: %s", account.Name))
	fmt.Fprintln(ui.Output, "\nUse it with:")
	fmt.Fprintf(ui.Output, "  $ fasearch search -r <rule> --account %s\n", account.Name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if logoutAll {
		if err := manager.DeleteAll(); err != nil {
			return fmt.Errorf("failed to remove all profiles: %w", err)
		}
		ui.PrintSuccess("All profiles removed")
		return nil
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		accounts, err := manager.List()
		if err != nil || len(accounts) == 0 {
			ui.PrintWarning("No stored profiles found")
			return nil
		}
		if len(accounts) > 1 {
			return errors.New("several profiles are stored; name the one to remove or pass --all")
		}
		name = accounts[0].Name
	}

	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove profile: %w", err)
	}
	ui.PrintSuccess("Profile removed: " + name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored profiles", "Use 'fasearch auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Profiles")
	fmt.Fprintln(ui.Output)
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		marker := ""
		if i == 0 {
			marker = " (default)"
		}
		fmt.Fprintf(ui.Output, "%d. %s%s\n", i+1, sanitized.Name, marker)
		fmt.Fprintf(ui.Output, "   Account: %s / %s\n", sanitized.AccountName, sanitized.Label)
		fmt.Fprintf(ui.Output, "   User: %s\n", sanitized.Username)
		fmt.Fprintf(ui.Output, "   Password: %s\n", sanitized.PasswordEncoded)
		fmt.Fprintf(ui.Output, "   Last Modified: %s\n\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// runSwitch re-saves a profile so it becomes the most recent, and so the default
func runSwitch(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	account, err := manager.Retrieve(args[0])
	if err != nil {
		return err
	}
	if err := manager.Store(account); err != nil {
		return err
	}
	ui.PrintSuccess("Default profile: " + account.Name)
	return nil
}
