// Package report turns saved counts pages into a CSV time series.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"fasearch/pkg/logger"
	"fasearch/pkg/storage"
)

// Counts maps a bucket's timePeriod (YYYYMMDDHHmm) to its count
type Counts map[string]int

type countsPage struct {
	Results []struct {
		TimePeriod string `json:"timePeriod"`
		Count      *int   `json:"count"`
	} `json:"results"`
}

// Collect merges every counts page saved in dir. Pages holding activities
// rather than counts are skipped. A period seen twice keeps the later file's
// value.
func Collect(dir string, log logger.Logger) (Counts, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	files, err := storage.ListPages(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages in %s: %w", dir, err)
	}

	counts := make(Counts)
	for _, file := range files {
		data, err := storage.ReadPage(file)
		if err != nil {
			return nil, err
		}

		var page countsPage
		if err := json.Unmarshal(data, &page); err != nil {
			log.WithError(err).WarnWithFields("Skipping unreadable page", map[string]interface{}{"file": file})
			continue
		}

		added := 0
		for _, r := range page.Results {
			if r.TimePeriod == "" || r.Count == nil {
				continue
			}
			counts[r.TimePeriod] = *r.Count
			added++
		}
		if added == 0 && len(page.Results) > 0 {
			log.DebugWithFields("Skipping page without counts", map[string]interface{}{"file": file})
		}
	}

	return counts, nil
}

// Periods returns the periods in chronological order
func (c Counts) Periods() []string {
	periods := make([]string, 0, len(c))
	for p := range c {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	return periods
}

// Total sums every bucket
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// WriteCSV writes a Date,Counts header and one row per period, oldest first,
// with the date as YYYY-MM-DD
func (c Counts) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Counts"}); err != nil {
		return err
	}
	for _, p := range c.Periods() {
		if err := cw.Write([]string{formatDate(p), strconv.Itoa(c[p])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileName is the CSV name for a bucket size
func FileName(bucket string) string {
	return fmt.Sprintf("counts_%s.csv", bucket)
}

// WriteFile writes the CSV to path
func (c Counts) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := c.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func formatDate(period string) string {
	if len(period) < 8 {
		return period
	}
	return period[0:4] + "-" + period[4:6] + "-" + period[6:8]
}
