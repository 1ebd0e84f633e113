// Package searchtest provides a scripted stand-in for the full-archive search
// API, for tests that exercise the real HTTP transport.
package searchtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

// Request is one request the server received
type Request struct {
	Path string
	Body map[string]interface{}
	Raw  []byte
}

// Next returns the continuation token the request carried, if any
func (r Request) Next() (string, bool) {
	v, ok := r.Body["next"]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

type reply struct {
	status int
	body   string
}

// Server answers search and counts requests from scripted pages keyed by the
// continuation token they answer ("" for the first request).
type Server struct {
	server   *httptest.Server
	account  string
	label    string
	username string
	password string

	mu       sync.Mutex
	pages    map[string]map[string]reply
	requests []Request
	count    int32
}

// NewServer starts a server for one account and stream label
func NewServer(account, label string) *Server {
	s := &Server{
		account: account,
		label:   label,
		pages: map[string]map[string]reply{
			"data":   {},
			"counts": {},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path("data"), s.handle("data"))
	mux.HandleFunc(s.path("counts"), s.handle("counts"))
	s.server = httptest.NewServer(mux)
	return s
}

func (s *Server) path(mode string) string {
	base := fmt.Sprintf("/search/fullarchive/accounts/%s/%s", s.account, s.label)
	if mode == "counts" {
		return base + "/counts.json"
	}
	return base + ".json"
}

// SearchURL is the data endpoint
func (s *Server) SearchURL() string {
	return s.server.URL + s.path("data")
}

// CountsURL is the counts endpoint
func (s *Server) CountsURL() string {
	return s.server.URL + s.path("counts")
}

// RequireAuth makes the server reject requests without these credentials
func (s *Server) RequireAuth(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.password = password
}

// AddPage scripts the 200 response to a request on mode ("data" or
// "counts") carrying token
func (s *Server) AddPage(mode, token, body string) {
	s.AddReply(mode, token, http.StatusOK, body)
}

// AddReply scripts any status and body
func (s *Server) AddReply(mode, token string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[mode][token] = reply{status: status, body: body}
}

// Requests returns what the server received, in order
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns how many requests arrived
func (s *Server) RequestCount() int {
	return int(atomic.LoadInt32(&s.count))
}

// Close shuts the server down
func (s *Server) Close() {
	s.server.Close()
}

func (s *Server) handle(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.count, 1)

		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var body map[string]interface{}
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{Path: r.URL.Path, Body: body, Raw: raw})
		username, password := s.username, s.password
		s.mu.Unlock()

		if username != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != username || p != password {
				writeError(w, http.StatusUnauthorized, "Invalid credentials")
				return
			}
		}

		token, _ := body["next"].(string)
		s.mu.Lock()
		rep, ok := s.pages[mode][token]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no page scripted for next=%q", token))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rep.status)
		io.WriteString(w, rep.body)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": message},
	})
}

// CountsPage builds a counts response body. Periods are YYYYMMDDHHmm and
// should be given newest first.
func CountsPage(next string, total int, periods map[string]int, order ...string) string {
	results := make([]string, 0, len(order))
	for _, p := range order {
		results = append(results, fmt.Sprintf(`{"timePeriod":%q,"count":%d}`, p, periods[p]))
	}
	return page(results, next, fmt.Sprintf(`"totalCount":%d`, total))
}

// DataPage builds an activities response body from postedTime values, newest
// first.
func DataPage(next string, postedTimes ...string) string {
	results := make([]string, 0, len(postedTimes))
	for i, pt := range postedTimes {
		results = append(results, fmt.Sprintf(`{"id":"tag:search.twitter.com,2005:%d","body":"activity %d","postedTime":%q}`, i+1, i+1, pt))
	}
	return page(results, next, "")
}

func page(results []string, next, extra string) string {
	fields := []string{fmt.Sprintf(`"results":[%s]`, strings.Join(results, ","))}
	if next != "" {
		fields = append(fields, fmt.Sprintf(`"next":%q`, next))
	}
	if extra != "" {
		fields = append(fields, extra)
	}
	return "{" + strings.Join(fields, ",") + "}"
}
