package search

import (
	"bytes"
	"encoding/json"
	"fmt"

	errs "fasearch/pkg/errors"
)

// Page is one decoded response. Results are newest first.
type Page struct {
	Results    []json.RawMessage `json:"results"`
	Next       string            `json:"next,omitempty"`
	TotalCount *int              `json:"totalCount,omitempty"`
	Error      json.RawMessage   `json:"error,omitempty"`

	// Raw is the response body as received, compacted
	Raw []byte `json:"-"`
}

// DecodePage parses a response body
func DecodePage(body []byte) (*Page, error) {
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, err, "decode response: %v", err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, err, "compact response: %v", err)
	}
	page.Raw = compact.Bytes()
	return &page, nil
}

// HasError reports whether the page carries a non-null error field
func (p *Page) HasError() bool {
	return len(p.Error) > 0 && !bytes.Equal(p.Error, []byte("null"))
}

// ErrorMessage extracts a readable message from the error field, which is
// either an object with a "message" key or any other JSON value.
func (p *Page) ErrorMessage() string {
	return errorMessage(p.Error)
}

// Count returns totalCount, or 0 when absent
func (p *Page) Count() int {
	if p.TotalCount == nil {
		return 0
	}
	return *p.TotalCount
}

func errorMessage(raw json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// statusMessage pulls the API's explanation out of a non-2xx body
func statusMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		return errorMessage(envelope.Error)
	}
	if len(body) > 200 {
		return fmt.Sprintf("%s...", body[:200])
	}
	return string(body)
}
