package cart

import (
	"strings"
	"time"

	"github.com/tillwise/pos/internal/domain"
)

// ScanDedupWindow is how long an identical barcode read is treated as a
// repeat of the previous one. Camera feeds report the same code many
// times per physical scan; only the first read counts.
const ScanDedupWindow = 2 * time.Second

// ProcessScan resolves a scanned code against the product list by SKU
// (case-insensitive) and adds the match to the cart. An identical code
// inside the dedup window is silently ignored. An out-of-stock match
// returns NoticeOutOfStock without adding.
func (s *Session) ProcessScan(code string, products []domain.Product) (Notice, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return NoticeNone, ErrUnknownSKU
	}

	s.mu.Lock()
	now := s.now()
	repeat := strings.EqualFold(code, s.lastScanCode) && now.Sub(s.lastScanAt) < ScanDedupWindow
	s.lastScanCode = code
	s.lastScanAt = now
	s.mu.Unlock()

	if repeat {
		return NoticeNone, nil
	}

	for _, p := range products {
		if p.SKU != "" && strings.EqualFold(p.SKU, code) {
			return s.AddItem(p)
		}
	}
	return NoticeNone, ErrUnknownSKU
}
