package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fasearch/pkg/auth"
	"fasearch/pkg/config"
	"fasearch/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage fasearch configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (FASEARCH_*)
  - .env files
  - Configuration file
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created as '.fasearch.yaml' in the current directory unless a
different path is given with --config.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the configuration resolved from every source. Passwords are masked.`,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value ranges and enumerations
  - Account and credential settings
  - Path accessibility`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# fasearch configuration file
#
# Every option can also be set with a FASEARCH_ environment variable,
# for example FASEARCH_USER_NAME, FASEARCH_PASSWORD or FASEARCH_LABEL.

# Search API account
account:
  # Account name and stream label, used to derive the endpoint URLs
  account_name: "YOUR_ACCOUNT"
  label: "prod"

  # Or give the search URL directly; the counts URL is derived from it
  # search_url: "https://gnip-api.twitter.com/search/fullarchive/accounts/YOUR_ACCOUNT/prod.json"

  # Basic authentication
  user_name: "you@example.com"
  # Plain text, or base64 with password_encoded: true
  password: ""
  password_encoded: false

search:
  # files, database or stdout
  storage: files
  out_box: ./search_out
  compress_files: false
  # Counts bucket: minute, hour or day
  bucket: day
  # Activities per page, 10 to 500
  max_results: 500

rate_limit:
  # Minimum gap between requests
  min_interval: 1s
  # Optional extra cap, 0 disables it
  requests_per_minute: 0
  # Network failures are retried after retry_delay
  retry_delay: 5s
  max_attempts: 2
  backoff_multiplier: 1.0

http:
  timeout: 120s
  user_agent: fasearch/1.0

# Used when storage is database
database:
  # sqlite3 or pgx
  driver: sqlite3
  path: ./search_out/activities.db
  # host: localhost
  # port: 5432
  # schema: search
  # user_name: ""
  # password: ""
  table: activities

checkpoint:
  enabled: true
  # Empty selects the platform data directory
  dir: ""

logging:
  # debug, info, warn, error
  level: info
  # Optional rotated log file; logs go to stderr when empty
  file: ""
  max_size: 100
  max_backups: 3
  max_age: 7
  compress: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".fasearch.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Fprintln(ui.Output, "\nTo overwrite, first remove the existing file:")
		fmt.Fprintf(ui.Output, "  rm %s\n", configPath)
		return fmt.Errorf("%s already exists", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Fprintln(ui.Output, "\nNext steps:")
	fmt.Fprintln(ui.Output, "1. Edit the file and add your account and credentials")
	fmt.Fprintln(ui.Output, "2. Run 'fasearch config validate' to check it")
	fmt.Fprintln(ui.Output, "3. Search with 'fasearch search -r <rule>'")
	return nil
}

// maskedConfig returns a copy of cfg safe to print
func maskedConfig(cfg *config.Config) config.Config {
	display := *cfg
	if display.Account.Password != "" {
		display.Account.Password = maskSecret(auth.EncodeIfNeeded(display.Account.Password))
	}
	if display.Database.Password != "" {
		display.Database.Password = maskSecret(display.Database.Password)
	}
	return display
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	display := maskedConfig(cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(ui.Output)
	fmt.Print(string(data))

	fmt.Fprintln(ui.Output, "\nConfiguration sources (in order of priority):")
	fmt.Fprintln(ui.Output, "1. Command line flags")
	fmt.Fprintln(ui.Output, "2. Environment variables (FASEARCH_*)")
	fmt.Fprintln(ui.Output, "3. .env and ~/.fasearch.env")
	if configFile != "" {
		fmt.Fprintf(ui.Output, "4. Configuration file: %s\n", configFile)
	} else {
		fmt.Fprintln(ui.Output, "4. Configuration file: (searched in default locations)")
	}
	fmt.Fprintln(ui.Output, "5. Default values")
	return nil
}

// checkConfig returns problems that make a search fail and warnings that
// only limit it
func checkConfig(cfg *config.Config) (problems, warnings []string) {
	if err := cfg.ValidateAccount(); err != nil {
		warnings = append(warnings, fmt.Sprintf("account incomplete (a stored profile may supply it): %v", err))
	}
	if cfg.Account.PasswordEncoded && cfg.Account.Password != "" && !auth.LooksEncoded(cfg.Account.Password) {
		problems = append(problems, "password_encoded is set but password is not base64")
	}

	if cfg.Search.Storage == config.StorageFiles {
		if err := os.MkdirAll(cfg.Search.OutBox, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create out box: %v", err))
		}
	}
	if cfg.Search.Storage == config.StorageDatabase && cfg.Database.Driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create database directory: %v", err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	return problems, warnings
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err)
		return err
	}

	problems, warnings := checkConfig(cfg)
	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Fprintf(ui.Output, "  - %s\n", p)
		}
		return errors.New("invalid configuration")
	}
	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		for _, w := range warnings {
			fmt.Fprintf(ui.Output, "  - %s\n", w)
		}
		fmt.Fprintln(ui.Output)
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Fprintln(ui.Output, "\nConfiguration summary:")
	fmt.Fprintf(ui.Output, "  Storage: %s\n", cfg.Search.Storage)
	fmt.Fprintf(ui.Output, "  Out box: %s\n", cfg.Search.OutBox)
	fmt.Fprintf(ui.Output, "  Bucket: %s\n", cfg.Search.Bucket)
	fmt.Fprintf(ui.Output, "  Max results: %d\n", cfg.Search.MaxResults)
	fmt.Fprintf(ui.Output, "  Min interval: %s\n", cfg.RateLimit.MinInterval)
	fmt.Fprintf(ui.Output, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
