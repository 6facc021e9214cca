package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openodds/markethub/internal/domain"
)

// resolutionRecord is one JSONL line of a resolution archive: the market
// header on the first line, then one line per settled position.
type resolutionRecord struct {
	Type      string   `json:"type"` // "market" or "position"
	MarketID  string   `json:"market_id"`
	Winner    string   `json:"winner,omitempty"`
	Outcomes  []string `json:"outcomes,omitempty"`
	B         float64  `json:"liquidity_b,omitempty"`
	Address   string   `json:"address,omitempty"`
	Outcome   string   `json:"outcome,omitempty"`
	Shares    float64  `json:"shares,omitempty"`
	CostPaid  float64  `json:"cost_paid,omitempty"`
	Won       bool     `json:"won,omitempty"`
	Payout    float64  `json:"payout,omitempty"`
	Mode      string   `json:"mode,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// ArchiveImpl implements domain.Archiver by serializing a resolved market and
// its classified positions to JSONL and uploading the file to object storage.
// The live position set is cleared after resolution, so this is the permanent
// record of who won what.
type ArchiveImpl struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl. audit may be nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, audit: audit}
}

// ArchiveResolution uploads the resolution record to
// archive/resolutions/{marketID}.jsonl and returns the object path.
func (a *ArchiveImpl) ArchiveResolution(ctx context.Context, market domain.Market, report domain.ResolutionReport) (string, error) {
	records := make([]resolutionRecord, 0, len(report.Outcomes)+1)
	records = append(records, resolutionRecord{
		Type:     "market",
		MarketID: market.ID,
		Winner:   report.Winner,
		Outcomes: market.Outcomes,
		B:        market.B,
	})
	for _, oc := range report.Outcomes {
		records = append(records, resolutionRecord{
			Type:      "position",
			MarketID:  market.ID,
			Address:   oc.Position.Address,
			Outcome:   oc.Position.Outcome,
			Shares:    oc.Position.Shares,
			CostPaid:  oc.Position.CostPaid,
			Won:       oc.Won,
			Payout:    oc.Payout,
			Mode:      string(oc.Position.Mode),
			Timestamp: oc.Position.Timestamp.Format(time.RFC3339),
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal resolution %s: %w", market.ID, err)
	}

	path := domain.ResolutionArchivePath(market.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: upload resolution %s: %w", market.ID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.resolution", map[string]any{
			"path":      path,
			"market_id": market.ID,
			"winner":    report.Winner,
			"positions": len(report.Outcomes),
		}); err != nil {
			return path, fmt.Errorf("s3blob: resolution audit log: %w", err)
		}
	}

	return path, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
