package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fasearch/internal/searchtest"
	"fasearch/pkg/auth"
	"fasearch/pkg/config"
	"fasearch/pkg/logger"
	"fasearch/pkg/ratelimit"
	"fasearch/pkg/rules"
	"fasearch/pkg/search"
	"fasearch/pkg/ui"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureUI(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := ui.Output
	ui.Output = &buf
	t.Cleanup(func() { ui.Output = prev })
	return &buf
}

func useManager(t *testing.T) *auth.Manager {
	t.Helper()
	manager, _ := auth.NewMockManager()
	prev := newCredentialManager
	newCredentialManager = func() (*auth.Manager, error) { return manager, nil }
	t.Cleanup(func() { newCredentialManager = prev })
	return manager
}

func testConfig(srv *searchtest.Server) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Account.SearchURL = srv.SearchURL()
	cfg.Account.UserName = "me@example.com"
	cfg.Account.Password = auth.EncodePassword("secret")
	cfg.Account.PasswordEncoded = true
	cfg.Search.Storage = config.StorageStdout
	cfg.RateLimit.MinInterval = time.Millisecond
	cfg.Checkpoint.Enabled = false
	return cfg
}

func TestSessionCountsEndToEnd(t *testing.T) {
	out := captureUI(t)

	srv := searchtest.NewServer("acme", "prod")
	defer srv.Close()
	srv.RequireAuth("me@example.com", "secret")
	srv.AddPage("counts", "", searchtest.CountsPage("tok1", 120,
		map[string]int{"201310200000": 70, "201310190000": 50}, "201310200000", "201310190000"))
	srv.AddPage("counts", "tok1", searchtest.CountsPage("", 30,
		map[string]int{"201310180000": 30}, "201310180000"))

	var stdout bytes.Buffer
	sess, err := newSession(testConfig(srv), sessionOptions{Stdout: &stdout, Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	defer sess.Close()

	err = sess.client.Run(context.Background(), rules.FromArgs("weather", ""), search.Query{
		Mode:   search.ModeCounts,
		From:   "201310180000",
		To:     "201310210000",
		Bucket: config.BucketDay,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, srv.RequestCount())
	assert.Contains(t, out.String(), "Total counts: 150")
	assert.Equal(t, 3, strings.Count(stdout.String(), "\n"))
	assert.Equal(t, 1, sess.tracker.TotalRules)
	assert.Equal(t, 2, sess.tracker.TotalPages)
}

func TestSessionFileSink(t *testing.T) {
	captureUI(t)

	srv := searchtest.NewServer("acme", "prod")
	defer srv.Close()
	srv.AddPage("data", "", searchtest.DataPage("", "2013-10-19T06:00:00.000Z", "2013-10-18T06:00:00.000Z"))

	cfg := testConfig(srv)
	cfg.Search.Storage = config.StorageFiles
	cfg.Search.OutBox = filepath.Join(t.TempDir(), "out")
	cfg.Search.CompressFiles = true

	sess, err := newSession(cfg, sessionOptions{Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	require.NoError(t, sess.client.Run(context.Background(), rules.FromArgs("snow", ""), search.Query{Mode: search.ModeData}))

	entries, err := os.ReadDir(cfg.Search.OutBox)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snow_20131018060000_20131019060000.json.gz", entries[0].Name())
}

func TestSessionDatabaseSink(t *testing.T) {
	captureUI(t)

	srv := searchtest.NewServer("acme", "prod")
	defer srv.Close()
	srv.AddPage("data", "", searchtest.DataPage("", "2013-10-19T06:00:00.000Z", "2013-10-18T06:00:00.000Z"))

	cfg := testConfig(srv)
	cfg.Search.Storage = config.StorageDatabase
	cfg.Database.Path = filepath.Join(t.TempDir(), "activities.db")

	sess, err := newSession(cfg, sessionOptions{Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	defer sess.Close()
	require.NoError(t, sess.client.Run(context.Background(), rules.FromArgs("snow", "t1"), search.Query{Mode: search.ModeData}))

	require.NotNil(t, sess.db)
	n, err := sess.db.CountRecords(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, sess.tracker.TotalRecords)
}

func TestSessionRequiresEndpoint(t *testing.T) {
	captureUI(t)
	cfg := config.DefaultConfig()
	cfg.Search.Storage = config.StorageStdout
	_, err := newSession(cfg, sessionOptions{Logger: logger.NewNopLogger()})
	assert.Error(t, err)
}

func TestNewLimiter(t *testing.T) {
	rl := config.RateLimitConfig{MinInterval: time.Second}

	_, ok := newLimiter(rl, 0).(*ratelimit.Interval)
	assert.True(t, ok)

	chain, ok := newLimiter(rl, 30).(ratelimit.Chain)
	require.True(t, ok)
	assert.Len(t, chain, 2)

	rl.RequestsPerMinute = 20
	_, ok = newLimiter(rl, 0).(ratelimit.Chain)
	assert.True(t, ok)
}

func TestBucketFlag(t *testing.T) {
	out := captureUI(t)

	assert.Equal(t, "", bucketFlag(""))
	assert.Equal(t, "hour", bucketFlag("hour"))
	assert.Empty(t, out.String())

	assert.Equal(t, "minute", bucketFlag("week"))
	assert.Contains(t, out.String(), "defaulting to 'minute'")
}

func TestSearchFlagsOutboxImpliesFiles(t *testing.T) {
	outBox, storage = "./out", ""
	t.Cleanup(func() { outBox, storage = "", "" })

	assert.Equal(t, config.StorageFiles, searchFlags()["storage"])

	storage = config.StorageDatabase
	assert.Equal(t, config.StorageDatabase, searchFlags()["storage"])
}

func TestLoadRules(t *testing.T) {
	rs, err := loadRules(" snow has:geo ", "t1")
	require.NoError(t, err)
	assert.Equal(t, []rules.Rule{{Value: "snow has:geo", Tag: "t1"}}, rs)

	path := filepath.Join(t.TempDir(), "rules.json")
	data, _ := json.Marshal([]rules.Rule{{Value: "rain"}, {Value: "snow", Tag: "s"}})
	require.NoError(t, os.WriteFile(path, data, 0644))

	rs, err = loadRules(path, "first")
	require.NoError(t, err)
	assert.Equal(t, []rules.Rule{{Value: "rain", Tag: "first"}, {Value: "snow", Tag: "s"}}, rs)

	_, err = loadRules("", "")
	assert.Error(t, err)
}

func TestNormalizeWindow(t *testing.T) {
	from, to, err := normalizeWindow("2013-10-18 06:00", "201310210000")
	require.NoError(t, err)
	assert.Equal(t, "201310180600", from)
	assert.Equal(t, "201310210000", to)

	from, to, err = normalizeWindow("", "")
	require.NoError(t, err)
	assert.Empty(t, from)
	assert.Empty(t, to)

	_, _, err = normalizeWindow("not-a-date", "")
	assert.ErrorContains(t, err, "start date")
}

func TestApplyStoredAccount(t *testing.T) {
	manager := useManager(t)
	require.NoError(t, manager.Store(&auth.Account{
		Name:            "archive",
		AccountName:     "acme",
		Label:           "prod",
		Username:        "me@example.com",
		PasswordEncoded: auth.EncodePassword("secret"),
	}))

	cfg := config.DefaultConfig()
	require.NoError(t, applyStoredAccount(cfg, ""))
	assert.Equal(t, "acme", cfg.Account.AccountName)
	assert.Equal(t, "me@example.com", cfg.Account.UserName)
	assert.True(t, cfg.Account.PasswordEncoded)

	cfg = config.DefaultConfig()
	cfg.Account.Label = "dev"
	require.NoError(t, applyStoredAccount(cfg, "archive"))
	assert.Equal(t, "dev", cfg.Account.Label, "explicit settings win over the profile")

	assert.Error(t, applyStoredAccount(config.DefaultConfig(), "missing"))
}

func TestApplyStoredAccountWithoutProfiles(t *testing.T) {
	useManager(t)
	cfg := config.DefaultConfig()
	require.NoError(t, applyStoredAccount(cfg, ""))
	assert.Empty(t, cfg.Account.UserName)
}

func TestMarkPasswordEncoding(t *testing.T) {
	var acct config.AccountConfig
	markPasswordEncoding(&acct, "p@ss word")
	assert.True(t, acct.PasswordEncoded)
	assert.Equal(t, auth.EncodePassword("p@ss word"), acct.Password)

	encoded := auth.EncodePassword("secret")
	markPasswordEncoding(&acct, encoded)
	assert.Equal(t, encoded, acct.Password)
}

func TestMaskedConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Account.Password = "a-long-plain-password"
	cfg.Database.Password = "short"

	display := maskedConfig(cfg)
	assert.NotContains(t, display.Account.Password, "plain")
	assert.Contains(t, display.Account.Password, "...")
	assert.Equal(t, "***", display.Database.Password)
	assert.Equal(t, "a-long-plain-password", cfg.Account.Password)
}

func TestCheckConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Search.OutBox = filepath.Join(t.TempDir(), "out")

	problems, warnings := checkConfig(cfg)
	assert.Empty(t, problems)
	assert.NotEmpty(t, warnings, "missing account is only a warning")

	cfg.Account.Password = "not base64!"
	cfg.Account.PasswordEncoded = true
	problems, _ = checkConfig(cfg)
	assert.Contains(t, problems, "password_encoded is set but password is not base64")
}
