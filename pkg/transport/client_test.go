package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	errs "fasearch/pkg/errors"
	"fasearch/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"
)

const countsURL = "https://gnip-api.example.com/search/fullarchive/accounts/acme/prod/counts.json"

func newInterceptedClient(t *testing.T, log logger.Logger) *Client {
	t.Helper()
	c := New(Options{
		Username:  "jane",
		Password:  "secret",
		Timeout:   5 * time.Second,
		UserAgent: "fasearch-test",
		Logger:    log,
	})
	gock.InterceptClient(c.HTTPClient())
	t.Cleanup(func() {
		gock.RestoreClient(c.HTTPClient())
		gock.Off()
	})
	return c
}

func TestPostSendsBodyAndCredentials(t *testing.T) {
	c := newInterceptedClient(t, logger.NewTestLogger())
	c.SetURL(countsURL)

	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte("jane:secret"))
	gock.New("https://gnip-api.example.com").
		Post("/search/fullarchive/accounts/acme/prod/counts.json").
		MatchHeader("Authorization", auth).
		MatchHeader("User-Agent", "fasearch-test").
		MatchType("json").
		JSON(map[string]interface{}{"query": "weather", "bucket": "day"}).
		Reply(200).
		JSON(map[string]interface{}{"results": []interface{}{}, "totalCount": 0})

	resp, err := c.Post(context.Background(), []byte(`{"query":"weather","bucket":"day"}`))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"results":[],"totalCount":0}`, string(resp.Body))
	assert.True(t, gock.IsDone())
}

func TestPostReturnsErrorStatusWithoutError(t *testing.T) {
	log := logger.NewTestLogger()
	c := newInterceptedClient(t, log)
	c.SetURL(countsURL)

	gock.New("https://gnip-api.example.com").
		Post("/search/fullarchive/accounts/acme/prod/counts.json").
		Reply(403).
		BodyString(`{"error":{"message":"Forbidden"}}`)

	resp, err := c.Post(context.Background(), []byte(`{"query":"weather"}`))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "Forbidden")
	assert.Len(t, log.GetMessagesByLevel("WARN"), 1)
}

func TestPostTransportFailureIsNetworkError(t *testing.T) {
	c := newInterceptedClient(t, logger.NewTestLogger())
	c.SetURL(countsURL)

	gock.New("https://gnip-api.example.com").
		Post("/search/fullarchive/accounts/acme/prod/counts.json").
		ReplyError(errors.New("connection reset by peer"))

	resp, err := c.Post(context.Background(), []byte(`{}`))
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
	assert.True(t, errs.IsRetryable(errs.TypeOf(err)))
}

func TestPostWithoutURL(t *testing.T) {
	c := New(Options{Logger: logger.NewNopLogger()})
	_, err := c.Post(context.Background(), []byte(`{}`))
	assert.Equal(t, errs.ErrorTypeConfig, errs.TypeOf(err))
}

func TestSetURL(t *testing.T) {
	c := New(Options{})
	c.SetURL(countsURL)
	assert.Equal(t, countsURL, c.URL())
}
