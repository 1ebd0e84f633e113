package main

import (
	"fmt"
	"io"
	"time"

	"fasearch/pkg/auth"
	"fasearch/pkg/checkpoint"
	"fasearch/pkg/config"
	"fasearch/pkg/database"
	"fasearch/pkg/logger"
	"fasearch/pkg/ratelimit"
	"fasearch/pkg/search"
	"fasearch/pkg/transport"
	"fasearch/pkg/ui"
)

// newCredentialManager is replaced in tests
var newCredentialManager = auth.NewManager

// sessionOptions carries the settings that only exist as flags
type sessionOptions struct {
	Resume            bool
	RequestsPerMinute int
	Stdout            io.Writer
	Logger            logger.Logger
}

// session is a configured search client plus whatever it must release
type session struct {
	client  *search.Client
	tracker *ui.StatusTracker
	db      *database.Store
}

// newSession wires transport, sink, throttle and checkpoints from cfg
func newSession(cfg *config.Config, opts sessionOptions) (*session, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	pw, err := auth.ResolvePassword(cfg.Account.Password, cfg.Account.PasswordEncoded)
	if err != nil {
		return nil, err
	}

	endpoints, err := search.ResolveEndpoints(cfg.Account.AccountName, cfg.Account.Label,
		cfg.Account.SearchURL, cfg.Account.CountsURL)
	if err != nil {
		return nil, err
	}

	t := transport.New(transport.Options{
		Username:  cfg.Account.UserName,
		Password:  pw,
		Timeout:   cfg.HTTP.Timeout,
		UserAgent: cfg.HTTP.UserAgent,
		Logger:    log,
	})

	s := &session{tracker: ui.NewStatusTracker(nil)}
	sink, err := s.openSink(cfg, opts.Stdout)
	if err != nil {
		return nil, err
	}

	searchOpts := search.Options{
		Endpoints:  endpoints,
		MaxResults: cfg.Search.MaxResults,
		Bucket:     cfg.Search.Bucket,
		Sink:       sink,
		Limiter:    newLimiter(cfg.RateLimit, opts.RequestsPerMinute),
		Retry: search.RetryOptions{
			MaxAttempts: cfg.RateLimit.MaxAttempts,
			Delay:       cfg.RateLimit.RetryDelay,
			Multiplier:  cfg.RateLimit.BackoffMultiplier,
		},
		Resume:   opts.Resume,
		Progress: s.tracker,
		Status:   ui.Output,
		Logger:   log,
	}

	if cfg.Checkpoint.Enabled {
		cp, err := checkpoint.NewManager(cfg.Checkpoint.Dir, log)
		if err != nil {
			s.Close()
			return nil, err
		}
		searchOpts.Checkpoints = cp
	} else if opts.Resume {
		ui.PrintWarning("Checkpoints are disabled, --resume has no effect")
	}

	client, err := search.NewClient(t, searchOpts)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.client = client
	return s, nil
}

// openSink builds the sink named by search.storage
func (s *session) openSink(cfg *config.Config, stdout io.Writer) (search.Sink, error) {
	switch cfg.Search.Storage {
	case config.StorageStdout:
		return search.NewStdoutSink(stdout), nil
	case config.StorageDatabase:
		store, err := database.Open(cfg.Database.Driver, cfg.DatabaseDSN(), cfg.Database.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.db = store
		return search.NewDatabaseSink(store), nil
	default:
		sink, err := search.NewFileSink(cfg.Search.OutBox, cfg.Search.CompressFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare out box: %w", err)
		}
		return sink, nil
	}
}

// Close releases the database connection, if any
func (s *session) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// newLimiter spaces requests by the minimum interval and, when perMinute is
// set, also caps them with a one minute sliding window
func newLimiter(rl config.RateLimitConfig, perMinute int) ratelimit.Limiter {
	interval := ratelimit.NewInterval(rl.MinInterval, nil)
	if perMinute <= 0 {
		perMinute = rl.RequestsPerMinute
	}
	if perMinute <= 0 {
		return interval
	}
	return ratelimit.Chain{interval, ratelimit.NewSlidingWindow(perMinute, time.Minute, nil)}
}

// applyStoredAccount fills missing credentials from a stored profile. A named
// profile must exist; without a name the default profile is used if any.
func applyStoredAccount(cfg *config.Config, name string) error {
	if name == "" && cfg.Account.UserName != "" && cfg.Account.Password != "" {
		return nil
	}

	manager, err := newCredentialManager()
	if err != nil {
		if name != "" {
			return fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		return nil
	}

	var account *auth.Account
	if name != "" {
		if account, err = manager.Retrieve(name); err != nil {
			return err
		}
	} else if account, err = manager.RetrieveDefault(); err != nil {
		return nil
	}

	account.ApplyTo(&cfg.Account)
	return nil
}

// markPasswordEncoding records a command line password in encoded form. A
// value that already looks base64 encoded is taken as is.
func markPasswordEncoding(acct *config.AccountConfig, pw string) {
	acct.Password = auth.EncodeIfNeeded(pw)
	acct.PasswordEncoded = true
}
