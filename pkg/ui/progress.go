package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// StatusTracker prints a one-line running status for each rule. It
// satisfies search.ProgressReporter.
type StatusTracker struct {
	mu sync.Mutex
	w  io.Writer

	mode      string
	rule      string
	pages     int
	records   int
	started   time.Time
	startTime time.Time

	TotalRules   int
	FailedRules  int
	TotalPages   int
	TotalRecords int
}

// NewStatusTracker creates a tracker writing to w; nil means Output
func NewStatusTracker(w io.Writer) *StatusTracker {
	if w == nil {
		w = Output
	}
	return &StatusTracker{w: w, startTime: time.Now()}
}

// RuleStarted begins a status line for rule
func (st *StatusTracker) RuleStarted(mode, rule string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.mode = mode
	st.rule = rule
	st.pages = 0
	st.records = 0
	st.started = time.Now()
	st.TotalRules++

	fmt.Fprintf(st.w, "%s %s %s\n", Magenta("[SEARCHING]"), Dim(mode), rule)
}

// PageFetched updates the status line
func (st *StatusTracker) PageFetched(page, records int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.pages = page
	st.records += records
	st.TotalPages++
	st.TotalRecords += records

	if IsTerminal(st.w) {
		fmt.Fprintf(st.w, "\r%s page %d | %s records | %.1f pages/min",
			Green("[FETCHED]"), st.pages, humanize.Comma(int64(st.records)), st.rate())
	}
}

// RuleFinished ends the rule's status line
func (st *StatusTracker) RuleFinished(pages, records int, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if IsTerminal(st.w) && st.pages > 0 {
		fmt.Fprintln(st.w)
	}
	if err != nil {
		st.FailedRules++
		fmt.Fprintf(st.w, "%s %s: %v\n", Red("[FAILED]"), st.rule, err)
		return
	}
	fmt.Fprintf(st.w, "%s %s: %d pages, %s records in %s\n",
		Green("[DONE]"), st.rule, pages, humanize.Comma(int64(records)),
		time.Since(st.started).Round(time.Millisecond))
}

// PrintSummary prints totals across all rules
func (st *StatusTracker) PrintSummary() {
	st.mu.Lock()
	defer st.mu.Unlock()

	fmt.Fprintf(st.w, "%s %d rules (%d failed), %s pages, %s records, started %s\n",
		Cyan("[SUMMARY]"), st.TotalRules, st.FailedRules,
		humanize.Comma(int64(st.TotalPages)), humanize.Comma(int64(st.TotalRecords)),
		humanize.Time(st.startTime))
}

// rate returns pages per minute for the current rule. Callers hold mu.
func (st *StatusTracker) rate() float64 {
	elapsed := time.Since(st.started).Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(st.pages) / elapsed
}
