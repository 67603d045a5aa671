package gateway

import (
	"strings"

	"github.com/nimasrn/report-dispatcher/internal/model"
)

const (
	statusHeaderRow = 1
	statusFirstData = 2
)

type statusColumns struct {
	taskNo, reportName, deliveryTime, status, primary, secondary, deliverer int
}

// ParseStatusRows turns a raw status sheet into rows. The sheet carries a
// banner in row 1, headers in row 2 and data from row 3. Rows whose report
// name holds no task id are dropped.
func ParseStatusRows(values [][]string) []model.StatusRow {
	if len(values) < statusFirstData+1 {
		return nil
	}

	cols := locateColumns(values[statusHeaderRow])
	if cols.reportName < 0 || cols.status < 0 {
		return nil
	}
	width := max(cols.reportName, cols.status)

	var rows []model.StatusRow
	for i, raw := range values[statusFirstData:] {
		if len(raw) <= width {
			continue
		}
		name := cell(raw, cols.reportName)
		taskID := model.TaskIDPattern.FindString(name)
		if taskID == "" {
			continue
		}
		rows = append(rows, model.StatusRow{
			TaskID:           taskID,
			TaskNo:           cell(raw, cols.taskNo),
			ReportName:       name,
			Status:           cell(raw, cols.status),
			DeliveryTime:     cell(raw, cols.deliveryTime),
			PrimaryAuthor:    cell(raw, cols.primary),
			SecondaryConfirm: cell(raw, cols.secondary),
			Deliverer:        cell(raw, cols.deliverer),
			RowNumber:        i + statusFirstData + 1,
		})
	}
	return rows
}

func locateColumns(headers []string) statusColumns {
	cols := statusColumns{-1, -1, -1, -1, -1, -1, -1}
	for i, h := range headers {
		h = strings.TrimSpace(h)
		switch {
		case strings.Contains(h, "タスクNO"):
			cols.taskNo = i
		case strings.Contains(h, "レポート名"):
			cols.reportName = i
		case strings.Contains(h, "納品時間") && strings.Contains(h, "日本時間"):
			cols.deliveryTime = i
		case h == "ステータス":
			cols.status = i
		case strings.Contains(h, "1次作成者"):
			cols.primary = i
		case strings.Contains(h, "2次確認"):
			cols.secondary = i
		case strings.Contains(h, "納品者"):
			cols.deliverer = i
		}
	}
	return cols
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
