package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/pkg/dune"
	"github.com/fortiblox/stratus-reports/pkg/report"
	"github.com/fortiblox/stratus-reports/pkg/retry"
)

// DuneExport is the outcome of a paged export.
type DuneExport struct {
	QueryID string
	Pages   int
	Rows    int
}

// ExportDune copies every result row of queryID to w. The header of the
// first page is written once; paging stops at an empty or short page. A page
// that still fails after retries ends the export with an error, since later
// offsets would leave a gap.
func ExportDune(ctx context.Context, src *Sources, queryID string, pageSize int, w report.RowWriter) (*DuneExport, error) {
	if src.Dune == nil || src.API == nil {
		return nil, ErrNotConfigured
	}
	if pageSize <= 0 {
		pageSize = dune.DefaultPageSize
	}
	log := src.logger().With(zap.String("query_id", queryID))

	exp := &DuneExport{QueryID: queryID}
	wroteHeader := false
	for offset := 0; ; offset += pageSize {
		page := retry.Do(ctx, src.API, "duneResults", func(ctx context.Context) (*dune.Page, error) {
			return src.Dune.ResultsPage(ctx, queryID, pageSize, offset)
		}, nil)
		if !page.OK() {
			return exp, fmt.Errorf("dune page at offset %d: %w", offset, page.Err)
		}
		p := page.Value
		if p.Empty() || (len(p.Rows) == 0 && wroteHeader) {
			log.Info("no data returned", zap.Int("offset", offset))
			break
		}

		if !wroteHeader {
			if err := w.Write(p.Header); err != nil {
				return exp, fmt.Errorf("dune export: %w", err)
			}
			wroteHeader = true
		}
		for _, row := range p.Rows {
			if err := w.Write(row); err != nil {
				return exp, fmt.Errorf("dune export: %w", err)
			}
			src.rowDone(StatusOK)
		}
		exp.Pages++
		exp.Rows += len(p.Rows)
		log.Info("appended page", zap.Int("offset", offset), zap.Int("rows", len(p.Rows)))

		if len(p.Rows) < pageSize {
			break
		}
	}
	return exp, nil
}
