package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fasearch/pkg/config"
	"fasearch/pkg/logger"
	"fasearch/pkg/rules"
	"fasearch/pkg/search"
	"fasearch/pkg/timestamp"
	"fasearch/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	// Search command flags
	ruleArg           string
	userName          string
	password          string
	address           string
	streamLabel       string
	startDate         string
	endDate           string
	tag               string
	outBox            string
	compressFiles     bool
	look              bool
	duration          string
	maxResults        int
	storage           string
	profileName       string
	requestsPerMinute int
	resume            bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Retrieve activities or counts for one or more rules",
	Long: `Submit rules to the full-archive search API and page through all results.

Credentials and the endpoint come from, in order of precedence:
  - Command line flags
  - Environment variables (FASEARCH_USER_NAME, FASEARCH_PASSWORD, ...)
  - A stored profile (use 'fasearch auth login' to store one)
  - Configuration file

Start and end accept YYYYMMDDHHmm, "YYYY-MM-DD HH:MM", ISO 8601, or a relative
offset such as 30m, 2h or 14d. Omitted ends fall back to the API defaults of
30 days ago and now.`,
	Example: `  # Activities for one rule over the last two days, written to ./out
  fasearch search -r "snow has:geo" -s 2d -o ./out

  # Daily counts instead of activities
  fasearch search -r weather -s 201310180000 -e 201310210000 -l -d day

  # Rules from a file, records streamed to stdout
  fasearch search -r rules.yaml --storage stdout

  # Continue an interrupted run
  fasearch search -r rules.yaml -s 30d --resume`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	f := searchCmd.Flags()
	f.StringVarP(&ruleArg, "rule", "r", "", "a single rule, or a .yaml/.json file of rules")
	f.StringVarP(&userName, "user", "u", "", "user name for basic authentication")
	f.StringVarP(&password, "password", "p", "", "password for basic authentication, plain or base64 encoded")
	f.StringVarP(&address, "address", "a", "", "search API URL, or the account name used to derive it")
	f.StringVarP(&streamLabel, "name", "n", "", "stream label, required with an account name")
	f.StringVarP(&startDate, "start_date", "s", "", "start of the search window")
	f.StringVarP(&endDate, "end_date", "e", "", "end of the search window")
	f.StringVarP(&tag, "tag", "t", "", "tag for the first rule")
	f.StringVarP(&outBox, "outbox", "o", "", "write page files to this directory")
	f.BoolVarP(&compressFiles, "zip", "z", false, "gzip page files")
	f.BoolVarP(&look, "look", "l", false, "return counts instead of activities")
	f.StringVarP(&duration, "duration", "d", "", "counts bucket: minute, hour or day")
	f.IntVarP(&maxResults, "max", "m", 0, "activities per page, 10 to 500")
	f.StringVar(&storage, "storage", "", "output: files, database or stdout")
	f.StringVar(&profileName, "account", "", "use a specific stored profile")
	f.IntVar(&requestsPerMinute, "requests-per-minute", 0, "additional cap on requests per minute")
	f.BoolVar(&resume, "resume", false, "resume rules from their last checkpoint")

	_ = searchCmd.MarkFlagRequired("rule")
}

// searchFlags collects the flags config.Load understands. -o implies file
// storage unless --storage says otherwise.
func searchFlags() map[string]interface{} {
	flags := map[string]interface{}{
		"user":        userName,
		"password":    password,
		"address":     address,
		"label":       streamLabel,
		"storage":     storage,
		"outbox":      outBox,
		"compress":    compressFiles,
		"bucket":      bucketFlag(duration),
		"max-results": maxResults,
		"log-level":   logLevel,
	}
	if outBox != "" && storage == "" {
		flags["storage"] = config.StorageFiles
	}
	return flags
}

// bucketFlag falls back to minute buckets on anything unrecognized
func bucketFlag(value string) string {
	if value == "" || config.ValidBucket(value) {
		return value
	}
	ui.PrintWarning("Unrecognized duration setting, defaulting to 'minute'", value)
	return config.BucketMinute
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, searchFlags())
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	if err := applyStoredAccount(cfg, profileName); err != nil {
		return err
	}
	if password != "" {
		markPasswordEncoding(&cfg.Account, password)
	}
	if err := cfg.ValidateAccount(); err != nil {
		ui.PrintError("Errors in configuration")
		return err
	}

	ruleset, err := loadRules(ruleArg, tag)
	if err != nil {
		return err
	}

	from, to, err := normalizeWindow(startDate, endDate)
	if err != nil {
		return err
	}

	mode := search.ModeData
	if look {
		mode = search.ModeCounts
	}

	sess, err := newSession(cfg, sessionOptions{
		Resume:            resume,
		RequestsPerMinute: requestsPerMinute,
		Stdout:            os.Stdout,
		Logger:            log,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	ui.PrintInfo("Rules", fmt.Sprintf("%d", len(ruleset)))
	ui.PrintInfo("Mode", mode.String())
	ui.PrintInfo("Storage", sess.client.SinkName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := sess.client.Run(ctx, ruleset, search.Query{
		Mode:   mode,
		From:   from,
		To:     to,
		Bucket: cfg.Search.Bucket,
	})
	sess.tracker.PrintSummary()

	if runErr != nil {
		log.WithError(runErr).Error("Search finished with errors")
		return runErr
	}
	ui.PrintSuccess("Search complete")
	return nil
}

// loadRules reads arg as a rules file when it names one, otherwise as a
// single rule
func loadRules(arg, tag string) ([]rules.Rule, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("either a single rule or a rules file is required")
	}

	var ruleset []rules.Rule
	if rules.LooksLikeFile(arg) {
		loaded, err := rules.LoadFile(arg)
		if err != nil {
			return nil, err
		}
		ruleset = loaded
	} else {
		ruleset = rules.FromArgs(arg, "")
	}
	rules.ApplyTag(ruleset, tag)
	return ruleset, nil
}

// normalizeWindow converts the start and end flags; empty ends stay empty
func normalizeWindow(start, end string) (from, to string, err error) {
	if start != "" {
		if from, err = timestamp.Normalize(start); err != nil {
			return "", "", fmt.Errorf("start date: %w", err)
		}
	}
	if end != "" {
		if to, err = timestamp.Normalize(end); err != nil {
			return "", "", fmt.Errorf("end date: %w", err)
		}
	}
	return from, to, nil
}
