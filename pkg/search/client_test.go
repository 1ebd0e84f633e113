package search

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fasearch/internal/searchtest"
	"fasearch/pkg/checkpoint"
	errs "fasearch/pkg/errors"
	"fasearch/pkg/logger"
	"fasearch/pkg/ratelimit"
	"fasearch/pkg/rules"
	"fasearch/pkg/storage"
	"fasearch/pkg/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type fixture struct {
	server *searchtest.Server
	client *Client
	clock  *testingclock.FakeClock
	log    *logger.TestLogger
	status *bytes.Buffer
	out    *bytes.Buffer
}

func newFixture(t *testing.T, configure func(*Options)) *fixture {
	t.Helper()

	server := searchtest.NewServer("acme", "prod")
	t.Cleanup(server.Close)

	f := &fixture{
		server: server,
		clock:  testingclock.NewFakeClock(time.Date(2013, 10, 21, 0, 0, 0, 0, time.UTC)),
		log:    logger.NewTestLogger(),
		status: &bytes.Buffer{},
		out:    &bytes.Buffer{},
	}

	opts := Options{
		Endpoints: Endpoints{Search: server.SearchURL(), Counts: server.CountsURL()},
		Sink:      NewStdoutSink(f.out),
		Limiter:   ratelimit.NewInterval(time.Second, f.clock),
		Retry:     RetryOptions{MaxAttempts: 2, Delay: 10 * time.Millisecond},
		Status:    f.status,
		Logger:    f.log,
	}
	if configure != nil {
		configure(&opts)
	}

	tr := transport.New(transport.Options{Username: "jane", Password: "secret", Timeout: 5 * time.Second, Logger: f.log})
	client, err := NewClient(tr, opts)
	require.NoError(t, err)
	f.client = client
	return f
}

func TestGetCountsWeatherScenario(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, func(o *Options) {
		sink, err := NewFileSink(dir, false)
		require.NoError(t, err)
		o.Sink = sink
	})
	f.server.AddPage("counts", "", searchtest.CountsPage("tok1", 120,
		map[string]int{"201310200000": 70, "201310190000": 50}, "201310200000", "201310190000"))
	f.server.AddPage("counts", "tok1", searchtest.CountsPage("", 30,
		map[string]int{"201310180000": 20, "201310170000": 10}, "201310180000", "201310170000"))

	err := f.client.GetCounts(context.Background(), rules.Rule{Value: "weather"}, "", "", "day")
	require.NoError(t, err)

	assert.Contains(t, f.status.String(), "Total counts: 150")
	assert.True(t, f.log.HasMessage("Total counts"))

	reqs := f.server.Requests()
	require.Len(t, reqs, 2)
	_, hasNext := reqs[0].Next()
	assert.False(t, hasNext, "first request must not carry a token")
	next, _ := reqs[1].Next()
	assert.Equal(t, "tok1", next)
	for _, r := range reqs {
		assert.Equal(t, "weather", r.Body["query"])
		assert.Equal(t, "day", r.Body["bucket"])
		assert.NotContains(t, r.Body, "maxResults")
		assert.True(t, strings.HasSuffix(r.Path, "/counts.json"))
	}

	files, err := storage.ListPages(dir)
	require.NoError(t, err)
	names := []string{filepath.Base(files[0]), filepath.Base(files[1])}
	assert.ElementsMatch(t, []string{
		"weather_20131019000000_20131020000000.json",
		"weather_20131017000000_20131018000000.json",
	}, names)
}

func TestGetCountsDefaultBucket(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Bucket = "hour" })
	f.server.AddPage("counts", "", searchtest.CountsPage("", 0, nil))

	require.NoError(t, f.client.GetCounts(context.Background(), rules.Rule{Value: "weather"}, "", "", ""))

	reqs := f.server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hour", reqs[0].Body["bucket"])
	assert.Contains(t, f.status.String(), "Total counts: 0")
	assert.Empty(t, f.out.String(), "an empty counts page writes nothing")
}

func TestGetDataIssuesOneRequestPerPage(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddPage("data", "", searchtest.DataPage("p2", "2013-10-18T09:00:00.000Z", "2013-10-18T08:00:00.000Z"))
	f.server.AddPage("data", "p2", searchtest.DataPage("p3", "2013-10-18T07:00:00.000Z"))
	f.server.AddPage("data", "p3", searchtest.DataPage("", "2013-10-18T06:00:00.000Z"))

	rule := rules.Rule{Value: "weather", Tag: "wx"}
	require.NoError(t, f.client.GetData(context.Background(), rule, "201310180000", "201310190000"))

	reqs := f.server.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "wx", reqs[0].Body["tag"])
	assert.Equal(t, float64(500), reqs[0].Body["maxResults"])
	assert.Equal(t, "201310180000", reqs[0].Body["fromDate"])
	assert.NotContains(t, reqs[0].Body, "bucket")

	lines := strings.Split(strings.TrimSpace(f.out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "2013-10-18T09:00:00.000Z")
	assert.Contains(t, lines[3], "2013-10-18T06:00:00.000Z")
	assert.True(t, f.log.HasMessage("Retrieving data from 201310180000 to 201310190000"))
}

func TestThrottleSpacesRequests(t *testing.T) {
	f := newFixture(t, nil)
	start := f.clock.Now()
	f.server.AddPage("data", "", searchtest.DataPage("p2", "2013-10-18T09:00:00.000Z"))
	f.server.AddPage("data", "p2", searchtest.DataPage("p3", "2013-10-18T08:00:00.000Z"))
	f.server.AddPage("data", "p3", searchtest.DataPage("", "2013-10-18T07:00:00.000Z"))

	require.NoError(t, f.client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", ""))

	// the first call goes straight out, each later one waits a full second
	assert.Equal(t, start.Add(2*time.Second), f.clock.Now())
}

func TestThrottleIsSharedAcrossRules(t *testing.T) {
	f := newFixture(t, nil)
	start := f.clock.Now()
	f.server.AddPage("data", "", searchtest.DataPage("", "2013-10-18T09:00:00.000Z"))

	rs := []rules.Rule{{Value: "weather"}, {Value: "snow"}}
	require.NoError(t, f.client.Run(context.Background(), rs, Query{Mode: ModeData}))

	assert.Equal(t, 2, f.server.RequestCount())
	assert.Equal(t, start.Add(time.Second), f.clock.Now())
}

func TestEmptyDataPage(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddPage("data", "", `{"results":[]}`)

	require.NoError(t, f.client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", ""))

	assert.Equal(t, 1, f.server.RequestCount())
	assert.True(t, f.log.HasMessage("No results returned"))
	assert.Empty(t, f.out.String())
}

func TestEmptyDataPageKeepsToken(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddPage("data", "", `{"results":[],"next":"p2"}`)
	f.server.AddPage("data", "p2", searchtest.DataPage("", "2013-10-18T09:00:00.000Z"))

	require.NoError(t, f.client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", ""))

	assert.Equal(t, 2, f.server.RequestCount())
	assert.NotEmpty(t, f.out.String())
}

func TestAPIErrorIsLoggedNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddPage("data", "", `{"error":{"message":"Partial results"},"results":[{"id":"1","postedTime":"2013-10-18T06:00:00.000Z"}]}`)

	require.NoError(t, f.client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", ""))

	msg, ok := f.log.FindMessage("Search API returned an error")
	require.True(t, ok)
	assert.Equal(t, "ERROR", msg.Level)
	assert.Equal(t, "Partial results", msg.Fields["message"])
	assert.Contains(t, f.out.String(), `"id":"1"`)
}

func TestNonSuccessStatusHaltsRule(t *testing.T) {
	for _, mode := range []Mode{ModeData, ModeCounts} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, nil)
			f.server.AddReply(mode.String(), "", http.StatusServiceUnavailable, `{"error":{"message":"Service unavailable"}}`)

			var err error
			if mode == ModeCounts {
				err = f.client.GetCounts(context.Background(), rules.Rule{Value: "weather"}, "", "", "day")
			} else {
				err = f.client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", "")
			}
			require.NoError(t, err)

			assert.Equal(t, 1, f.server.RequestCount(), "a status error is not retried")
			msg, ok := f.log.FindMessage("Search API request was not successful")
			require.True(t, ok)
			assert.Equal(t, http.StatusServiceUnavailable, msg.Fields["status_code"])
			assert.Equal(t, "Service unavailable", msg.Fields["message"])
			assert.Empty(t, f.out.String())
		})
	}
}

func TestStatusAfterFirstPageKeepsDispatchedPage(t *testing.T) {
	f := newFixture(t, nil)
	f.server.RequireAuth("jane", "secret")
	f.server.AddPage("data", "", searchtest.DataPage("p2", "2013-10-18T09:00:00.000Z"))
	f.server.AddReply("data", "p2", http.StatusTooManyRequests, `{"error":{"message":"Rate limit exceeded"}}`)

	require.NoError(t, f.client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", ""))

	assert.Equal(t, 2, f.server.RequestCount())
	assert.Contains(t, f.out.String(), "2013-10-18T09:00:00.000Z")
}

func TestInvalidBodyIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddPage("data", "", `<html>oops</html>`)

	err := f.client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", "")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
}

func TestResumeFromCheckpoint(t *testing.T) {
	cpDir := t.TempDir()
	cps, err := checkpoint.NewManager(cpDir, logger.NewNopLogger())
	require.NoError(t, err)
	key := checkpoint.Key("counts", "weather", "", "", "", "day")

	first := newFixture(t, func(o *Options) { o.Checkpoints = cps })
	first.server.AddPage("counts", "", searchtest.CountsPage("tok1", 120,
		map[string]int{"201310200000": 120}, "201310200000"))
	first.server.AddReply("counts", "tok1", http.StatusInternalServerError, `{"error":{"message":"try later"}}`)

	require.NoError(t, first.client.GetCounts(context.Background(), rules.Rule{Value: "weather"}, "", "", "day"))
	assert.Contains(t, first.status.String(), "Total counts: 120")

	saved, err := cps.Load(key)
	require.NoError(t, err)
	require.NotNil(t, saved, "a halted rule keeps its checkpoint")
	assert.Equal(t, "tok1", saved.NextToken)
	assert.Equal(t, 120, saved.CountTotal)
	assert.Equal(t, 1, saved.PagesFetched)

	second := newFixture(t, func(o *Options) {
		o.Checkpoints = cps
		o.Resume = true
	})
	second.server.AddPage("counts", "tok1", searchtest.CountsPage("", 30,
		map[string]int{"201310190000": 30}, "201310190000"))

	require.NoError(t, second.client.GetCounts(context.Background(), rules.Rule{Value: "weather"}, "", "", "day"))

	reqs := second.server.Requests()
	require.Len(t, reqs, 1)
	next, _ := reqs[0].Next()
	assert.Equal(t, "tok1", next)
	assert.Contains(t, second.status.String(), "Total counts: 150")
	assert.True(t, second.log.HasMessage("Resuming from checkpoint"))
	assert.False(t, cps.Exists(key), "a finished rule drops its checkpoint")
}

func TestCheckpointIgnoredWithoutResume(t *testing.T) {
	cps, err := checkpoint.NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	key := checkpoint.Key("data", "weather", "", "", "", "")
	require.NoError(t, cps.Save(&checkpoint.Checkpoint{Key: key, Rule: "weather", NextToken: "stale"}))

	f := newFixture(t, func(o *Options) { o.Checkpoints = cps })
	f.server.AddPage("data", "", searchtest.DataPage("", "2013-10-18T09:00:00.000Z"))

	require.NoError(t, f.client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", ""))
	_, hasNext := f.server.Requests()[0].Next()
	assert.False(t, hasNext)
	assert.False(t, cps.Exists(key))
}

type recordingProgress struct {
	started  []string
	pages    []int
	finished int
	lastErr  error
}

func (p *recordingProgress) RuleStarted(mode, rule string) {
	p.started = append(p.started, mode+":"+rule)
}

func (p *recordingProgress) PageFetched(page, records int) {
	p.pages = append(p.pages, records)
}

func (p *recordingProgress) RuleFinished(pages, records int, err error) {
	p.finished++
	p.lastErr = err
}

func TestProgressReporter(t *testing.T) {
	progress := &recordingProgress{}
	f := newFixture(t, func(o *Options) { o.Progress = progress })
	f.server.AddPage("data", "", searchtest.DataPage("p2", "2013-10-18T09:00:00.000Z", "2013-10-18T08:00:00.000Z"))
	f.server.AddPage("data", "p2", searchtest.DataPage("", "2013-10-18T07:00:00.000Z"))

	require.NoError(t, f.client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", ""))

	assert.Equal(t, []string{"data:weather"}, progress.started)
	assert.Equal(t, []int{2, 1}, progress.pages)
	assert.Equal(t, 1, progress.finished)
	assert.NoError(t, progress.lastErr)
}

type mockTransport struct {
	mock.Mock
	url string
}

func (m *mockTransport) SetURL(url string) {
	m.url = url
}

func (m *mockTransport) Post(ctx context.Context, body []byte) (*transport.Response, error) {
	args := m.Called(string(body))
	resp, _ := args.Get(0).(*transport.Response)
	return resp, args.Error(1)
}

func ok(body string) *transport.Response {
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(body)}
}

var errReset = errs.New(errs.ErrorTypeNetwork, errors.New("connection reset by peer"), "POST: connection reset by peer")

func newMockClient(t *testing.T, tr *mockTransport, out *bytes.Buffer) *Client {
	t.Helper()
	client, err := NewClient(tr, Options{
		Endpoints: EndpointsFor("acme", "prod"),
		Sink:      NewStdoutSink(out),
		Limiter:   ratelimit.NewInterval(time.Second, testingclock.NewFakeClock(time.Now())),
		Retry:     RetryOptions{MaxAttempts: 2, Delay: 10 * time.Millisecond},
		Status:    &bytes.Buffer{},
		Logger:    logger.NewTestLogger(),
	})
	require.NoError(t, err)
	return client
}

func TestTransportFailureRetriedOnce(t *testing.T) {
	tr := &mockTransport{}
	tr.On("Post", mock.Anything).Return(nil, errReset).Once()
	tr.On("Post", mock.Anything).Return(ok(searchtest.DataPage("", "2013-10-18T09:00:00.000Z")), nil).Once()

	var out bytes.Buffer
	client := newMockClient(t, tr, &out)
	require.NoError(t, client.GetData(context.Background(), rules.Rule{Value: "weather"}, "", ""))

	tr.AssertNumberOfCalls(t, "Post", 2)
	assert.Contains(t, out.String(), "2013-10-18T09:00:00.000Z")
	assert.Equal(t, EndpointsFor("acme", "prod").Search, tr.url)
}

func TestTransportFailureTwiceIsFatal(t *testing.T) {
	tr := &mockTransport{}
	tr.On("Post", mock.Anything).Return(nil, errReset)

	client := newMockClient(t, tr, &bytes.Buffer{})
	err := client.GetCounts(context.Background(), rules.Rule{Value: "weather"}, "", "", "day")

	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
	tr.AssertNumberOfCalls(t, "Post", 2)
	assert.Equal(t, EndpointsFor("acme", "prod").Counts, tr.url)
}

func TestRunIsolatesFailingRule(t *testing.T) {
	tr := &mockTransport{}
	tr.On("Post", mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, `"query":"broken"`)
	})).Return(nil, errReset)
	tr.On("Post", mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, `"query":"weather"`)
	})).Return(ok(searchtest.DataPage("", "2013-10-18T09:00:00.000Z")), nil)

	var out bytes.Buffer
	client := newMockClient(t, tr, &out)
	err := client.Run(context.Background(), []rules.Rule{{Value: "broken"}, {Value: "weather"}}, Query{Mode: ModeData})

	require.Error(t, err)
	assert.Contains(t, err.Error(), `rule "broken"`)
	assert.NotContains(t, err.Error(), `rule "weather"`)
	assert.Contains(t, out.String(), "2013-10-18T09:00:00.000Z")
	tr.AssertNumberOfCalls(t, "Post", 3)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	tr := &mockTransport{}
	client := newMockClient(t, tr, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.Run(ctx, []rules.Rule{{Value: "weather"}}, Query{Mode: ModeCounts})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	tr.AssertNotCalled(t, "Post", mock.Anything)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil, Options{})
	assert.Error(t, err)

	_, err = NewClient(&mockTransport{}, Options{Endpoints: EndpointsFor("a", "b")})
	assert.Error(t, err)

	_, err = NewClient(&mockTransport{}, Options{Sink: NewStdoutSink(nil)})
	assert.Error(t, err)

	c, err := NewClient(&mockTransport{}, Options{Endpoints: EndpointsFor("a", "b"), Sink: NewStdoutSink(nil)})
	require.NoError(t, err)
	assert.Equal(t, 500, c.maxResults)
	assert.Equal(t, "day", c.bucket)
	assert.Equal(t, 2, c.retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, c.retry.Delay)
	assert.Equal(t, "stdout", c.SinkName())
}
