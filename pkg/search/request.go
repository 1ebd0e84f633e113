package search

import (
	"encoding/json"

	"fasearch/pkg/rules"
)

// Mode selects the endpoint: raw activities or time-bucketed counts
type Mode int

const (
	ModeData Mode = iota
	ModeCounts
)

func (m Mode) String() string {
	if m == ModeCounts {
		return "counts"
	}
	return "data"
}

// Request is the JSON body posted to either endpoint. Optional fields are
// omitted when empty, never sent as null.
type Request struct {
	Query      string `json:"query"`
	FromDate   string `json:"fromDate,omitempty"`
	ToDate     string `json:"toDate,omitempty"`
	Tag        string `json:"tag,omitempty"`
	MaxResults int    `json:"maxResults,omitempty"`
	Bucket     string `json:"bucket,omitempty"`
	Next       string `json:"next,omitempty"`
}

// BuildDataRequest builds an activities request body. The rule's tag is
// included when present; next is included only when non-empty.
func BuildDataRequest(rule rules.Rule, from, to string, maxResults int, next string) ([]byte, error) {
	return json.Marshal(Request{
		Query:      rule.Value,
		FromDate:   from,
		ToDate:     to,
		Tag:        rule.Tag,
		MaxResults: maxResults,
		Next:       next,
	})
}

// BuildCountsRequest builds a counts request body. Tags are not sent to the
// counts endpoint.
func BuildCountsRequest(rule rules.Rule, from, to, bucket, next string) ([]byte, error) {
	return json.Marshal(Request{
		Query:    rule.Value,
		FromDate: from,
		ToDate:   to,
		Bucket:   bucket,
		Next:     next,
	})
}
