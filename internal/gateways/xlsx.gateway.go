package gateway

import (
	"context"
	"fmt"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// XLSXSource reads the status sheet from an exported workbook on disk. The
// file is reopened on every call so a replaced export is picked up.
type XLSXSource struct {
	path  string
	sheet string
}

func NewXLSXSource(path, sheet string) *XLSXSource {
	return &XLSXSource{path: path, sheet: sheet}
}

func (x *XLSXSource) Rows(ctx context.Context) ([]model.StatusRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open status workbook: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("failed to close status workbook", "path", x.path, "error", err)
		}
	}()

	values, err := f.GetRows(x.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", x.sheet, err)
	}
	rows := ParseStatusRows(values)
	logger.Debug("status rows loaded", "source", "xlsx", "rows", len(rows))
	return rows, nil
}
