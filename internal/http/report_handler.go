package http

import (
	"context"
	"net/http"
	"time"

	"github.com/tillwise/pos/internal/journal"
)

// Reporter aggregates the local receipt journal.
type Reporter interface {
	SummarizeSince(ctx context.Context, since time.Time) (journal.DailySummary, error)
}

type ReportHandler struct {
	reporter Reporter
}

func NewReportHandler(reporter Reporter) *ReportHandler {
	return &ReportHandler{reporter: reporter}
}

// Today returns the receipt count and totals since local midnight.
func (h *ReportHandler) Today(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	summary, err := h.reporter.SummarizeSince(r.Context(), midnight)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "report_error", "failed to summarize receipts")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
