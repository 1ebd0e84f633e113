package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"fasearch/pkg/checkpoint"
	"fasearch/pkg/config"
	errs "fasearch/pkg/errors"
	"fasearch/pkg/logger"
	"fasearch/pkg/ratelimit"
	"fasearch/pkg/retry"
	"fasearch/pkg/rules"
	"fasearch/pkg/timestamp"
	"fasearch/pkg/transport"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Transport posts a request body to the current endpoint
type Transport interface {
	SetURL(url string)
	Post(ctx context.Context, body []byte) (*transport.Response, error)
}

// CheckpointStore persists pagination state between process runs
type CheckpointStore interface {
	Load(key string) (*checkpoint.Checkpoint, error)
	Save(cp *checkpoint.Checkpoint) error
	Delete(key string) error
}

// ProgressReporter is told how a rule's pagination is going
type ProgressReporter interface {
	RuleStarted(mode, rule string)
	PageFetched(page, records int)
	RuleFinished(pages, records int, err error)
}

// RetryOptions configures retries of transport failures
type RetryOptions struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
}

// Options configures a Client
type Options struct {
	Endpoints  Endpoints
	MaxResults int
	Bucket     string
	Sink       Sink
	Limiter    ratelimit.Limiter
	Retry      RetryOptions

	// Checkpoints enables saving pagination state after every page.
	// Resume restarts rules from what was saved.
	Checkpoints CheckpointStore
	Resume      bool

	Progress ProgressReporter
	// Status receives human-facing summaries such as the counts total.
	// Defaults to stderr so a stdout sink stays a clean record stream.
	Status io.Writer
	Logger logger.Logger
}

// Query is the part of a request shared by every rule of a run
type Query struct {
	Mode   Mode
	From   string
	To     string
	Bucket string
}

// Client is one search session. Its throttle is shared by every rule it runs.
type Client struct {
	transport   Transport
	endpoints   Endpoints
	maxResults  int
	bucket      string
	sink        Sink
	dispatcher  *dispatcher
	limiter     ratelimit.Limiter
	retry       RetryOptions
	checkpoints CheckpointStore
	resume      bool
	progress    ProgressReporter
	status      io.Writer
	logger      logger.Logger
	newRunID    func() string
	now         func() time.Time
}

// NewClient creates a session over t
func NewClient(t Transport, opts Options) (*Client, error) {
	if t == nil {
		return nil, errors.New("transport is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if opts.Endpoints.Search == "" || opts.Endpoints.Counts == "" {
		return nil, errors.New("search and counts endpoints are required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = config.MaxResultsLimit
	}
	if opts.Bucket == "" {
		opts.Bucket = config.BucketDay
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewInterval(time.Second, nil)
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 2
	}
	if opts.Retry.Delay <= 0 {
		opts.Retry.Delay = 5 * time.Second
	}
	if opts.Status == nil {
		opts.Status = os.Stderr
	}

	return &Client{
		transport:   t,
		endpoints:   opts.Endpoints,
		maxResults:  opts.MaxResults,
		bucket:      opts.Bucket,
		sink:        opts.Sink,
		dispatcher:  &dispatcher{sink: opts.Sink, logger: log},
		limiter:     opts.Limiter,
		retry:       opts.Retry,
		checkpoints: opts.Checkpoints,
		resume:      opts.Resume,
		progress:    opts.Progress,
		status:      opts.Status,
		logger:      log,
		newRunID:    uuid.NewString,
		now:         time.Now,
	}, nil
}

// run is the state of one rule's pagination. Nothing in it outlives the rule.
type run struct {
	id        string
	mode      Mode
	rule      rules.Rule
	from      string
	to        string
	bucket    string
	key       string
	cursor    cursor
	pages     int
	records   int
	total     int
	halted    bool
	createdAt time.Time
}

func (c *Client) newRun(mode Mode, rule rules.Rule, from, to, bucket string) *run {
	return &run{
		id:        c.newRunID(),
		mode:      mode,
		rule:      rule,
		from:      from,
		to:        to,
		bucket:    bucket,
		key:       checkpoint.Key(mode.String(), rule.Value, rule.Tag, from, to, bucket),
		createdAt: c.now(),
	}
}

// GetData pages through matching activities, writing every page to the sink
func (c *Client) GetData(ctx context.Context, rule rules.Rule, from, to string) error {
	r := c.newRun(ModeData, rule, from, to, "")
	return c.paginate(ctx, r)
}

// GetCounts pages through bucketed counts and reports the total. An empty
// bucket uses the session default.
func (c *Client) GetCounts(ctx context.Context, rule rules.Rule, from, to, bucket string) error {
	if bucket == "" {
		bucket = c.bucket
	}
	r := c.newRun(ModeCounts, rule, from, to, bucket)
	if err := c.paginate(ctx, r); err != nil {
		return err
	}

	fmt.Fprintf(c.status, "Total counts: %d\n", r.total)
	c.logger.InfoWithFields("Total counts", map[string]interface{}{
		"rule":   rule.Value,
		"bucket": bucket,
		"total":  r.total,
	})
	return nil
}

// Run processes rules one after another. A failing rule is logged and the
// next one starts fresh; all failures are returned together at the end.
func (c *Client) Run(ctx context.Context, rs []rules.Rule, q Query) error {
	var result *multierror.Error
	for i, rule := range rs {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}

		var err error
		if q.Mode == ModeCounts {
			err = c.GetCounts(ctx, rule, q.From, q.To, q.Bucket)
		} else {
			err = c.GetData(ctx, rule, q.From, q.To)
		}
		if err != nil {
			c.logger.WithError(err).ErrorWithFields("Rule failed", map[string]interface{}{
				"rule":  rule.Value,
				"index": i,
			})
			result = multierror.Append(result, fmt.Errorf("rule %q: %w", rule.Value, err))
		}
	}
	return result.ErrorOrNil()
}

func (c *Client) paginate(ctx context.Context, r *run) (err error) {
	if r.mode == ModeCounts {
		c.transport.SetURL(c.endpoints.Counts)
	} else {
		c.transport.SetURL(c.endpoints.Search)
	}

	c.logger.Info(fmt.Sprintf("Retrieving data from %s", timestamp.Describe(r.from, r.to)))
	c.restore(r)

	if c.progress != nil {
		c.progress.RuleStarted(r.mode.String(), r.rule.Value)
		defer func() { c.progress.RuleFinished(r.pages, r.records, err) }()
	}

	start := time.Now()
	for !r.cursor.finished() {
		if err := c.step(ctx, r); err != nil {
			return err
		}
	}

	if !r.halted {
		c.clearCheckpoint(r)
	}
	logger.LogRunSummary(c.logger, r.mode.String(), r.rule.Value, r.pages, r.records, time.Since(start))
	return nil
}

// step fetches and dispatches one page
func (c *Client) step(ctx context.Context, r *run) error {
	body, err := c.buildRequest(r)
	if err != nil {
		return errs.New(errs.ErrorTypeParsing, err, "build request: %v", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}

	if !errs.IsSuccessStatus(resp.StatusCode) {
		c.logger.ErrorWithFields("Search API request was not successful", map[string]interface{}{
			"rule":        r.rule.Value,
			"mode":        r.mode.String(),
			"status_code": resp.StatusCode,
			"message":     statusMessage(resp.Body),
		})
		r.halted = true
		r.cursor = r.cursor.halt()
		return nil
	}

	page, err := DecodePage(resp.Body)
	if err != nil {
		return err
	}

	r.pages++
	pc := PageContext{RunID: r.id, Mode: r.mode, Rule: r.rule, Page: r.pages}
	res, err := c.dispatcher.dispatch(ctx, pc, page)
	if err != nil {
		return err
	}

	r.records += res.records
	r.total += res.count
	r.cursor = r.cursor.advance(res.next)

	if c.progress != nil {
		c.progress.PageFetched(r.pages, res.records)
	}
	c.saveCheckpoint(r)
	return nil
}

func (c *Client) buildRequest(r *run) ([]byte, error) {
	if r.mode == ModeCounts {
		return BuildCountsRequest(r.rule, r.from, r.to, r.bucket, r.cursor.next())
	}
	return BuildDataRequest(r.rule, r.from, r.to, c.maxResults, r.cursor.next())
}

// post sends one request through the throttle, retrying transport failures
func (c *Client) post(ctx context.Context, body []byte) (*transport.Response, error) {
	cfg := retry.NewConfig(ctx, c.retry.MaxAttempts, c.retry.Delay, c.retry.Multiplier, c.logger)
	return retry.DoWithResult(func() (*transport.Response, error) {
		if waited := c.limiter.Wait(); waited > 0 {
			logger.LogThrottle(c.logger, waited)
		}
		return c.transport.Post(ctx, body)
	}, cfg)
}

// restore picks up a saved cursor when resuming
func (c *Client) restore(r *run) {
	if c.checkpoints == nil || !c.resume {
		return
	}

	cp, err := c.checkpoints.Load(r.key)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to load checkpoint, starting from the first page")
		return
	}
	if cp == nil || cp.NextToken == "" {
		return
	}

	r.id = cp.RunID
	r.cursor = resumeAt(cp.NextToken)
	r.pages = cp.PagesFetched
	r.records = cp.RecordsFetched
	r.total = cp.CountTotal
	r.createdAt = cp.CreatedAt

	c.logger.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
		"rule":  r.rule.Value,
		"pages": cp.PagesFetched,
		"run":   cp.RunID,
	})
}

func (c *Client) saveCheckpoint(r *run) {
	if c.checkpoints == nil || r.cursor.finished() {
		return
	}

	cp := &checkpoint.Checkpoint{
		Key:            r.key,
		RunID:          r.id,
		Mode:           r.mode.String(),
		Rule:           r.rule.Value,
		Tag:            r.rule.Tag,
		FromDate:       r.from,
		ToDate:         r.to,
		Bucket:         r.bucket,
		NextToken:      r.cursor.next(),
		PagesFetched:   r.pages,
		RecordsFetched: r.records,
		CountTotal:     r.total,
		CreatedAt:      r.createdAt,
	}
	if err := c.checkpoints.Save(cp); err != nil {
		c.logger.WithError(err).Warn("Failed to save checkpoint")
	}
}

func (c *Client) clearCheckpoint(r *run) {
	if c.checkpoints == nil {
		return
	}
	if err := c.checkpoints.Delete(r.key); err != nil {
		c.logger.WithError(err).Warn("Failed to delete checkpoint")
	}
}

// SinkName names the session's sink for logs and banners
func (c *Client) SinkName() string {
	return sinkName(c.sink)
}
