package search

import (
	"context"

	"fasearch/pkg/logger"
)

// dispatchResult is what the pagination loop needs back from a page
type dispatchResult struct {
	next    string
	records int
	count   int
}

// dispatcher routes decoded pages to the sink
type dispatcher struct {
	sink   Sink
	logger logger.Logger
}

// dispatch writes page and reports its continuation token. An error field
// in the payload is logged but does not stop processing.
func (d *dispatcher) dispatch(ctx context.Context, pc PageContext, page *Page) (dispatchResult, error) {
	res := dispatchResult{
		next:    page.Next,
		records: len(page.Results),
	}
	if pc.Mode == ModeCounts {
		res.count = page.Count()
	}

	if page.HasError() {
		d.logger.ErrorWithFields("Search API returned an error", map[string]interface{}{
			"rule":    pc.Rule.Value,
			"page":    pc.Page,
			"message": page.ErrorMessage(),
		})
	}

	if len(page.Results) == 0 {
		if pc.Mode == ModeData {
			d.logger.WithField("rule", pc.Rule.Value).Info("No results returned")
		}
		return res, nil
	}

	if err := d.sink.WritePage(ctx, pc, page); err != nil {
		return res, err
	}
	logger.LogPage(d.logger, pc.Rule.Value, pc.Page, res.records, res.next != "")
	return res, nil
}
