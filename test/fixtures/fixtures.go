package fixtures

import (
	"path/filepath"
	"testing"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const StatusSheetName = "Report main"

func NewScheduledReport(name, at string) *model.Report {
	return &model.Report{
		Name:         name,
		Author:       "Taro",
		Receiver:     "Boss",
		Link:         "https://docs.example.com/" + name,
		DeliveryMode: model.DeliveryModeScheduled,
		ScheduleTime: at,
		Status:       model.ReportStatusActive,
	}
}

func NewAutomaticReport(name, taskID string) *model.Report {
	return &model.Report{
		Name:            name,
		Author:          "Lead",
		Receiver:        "Boss",
		Link:            "https://docs.example.com/" + name,
		DeliveryMode:    model.DeliveryModeAutomatic,
		AutomaticTaskID: taskID,
		Status:          model.ReportStatusActive,
	}
}

func NewManualReport(name string) *model.Report {
	return &model.Report{
		Name:         name,
		Author:       "Taro",
		Receiver:     "Boss",
		Link:         "https://docs.example.com/" + name,
		DeliveryMode: model.DeliveryModeManual,
		Status:       model.ReportStatusActive,
	}
}

// StatusLine is one data row of the status sheet.
type StatusLine struct {
	TaskNo       string
	ReportName   string
	DeliveryTime string
	Status       string
	Primary      string
	Secondary    string
	Deliverer    string
}

// StatusSheet renders lines in the sheet layout: a banner row, the header
// row, then data.
func StatusSheet(lines ...StatusLine) [][]string {
	values := [][]string{
		{"Report status"},
		{"タスクNO", "レポート名", "納品時間(日本時間)", "ステータス", "1次作成者", "2次確認", "納品者"},
	}
	for _, l := range lines {
		values = append(values, []string{l.TaskNo, l.ReportName, l.DeliveryTime, l.Status, l.Primary, l.Secondary, l.Deliverer})
	}
	return values
}

// WriteStatusWorkbook saves values as an xlsx file and returns its path.
func WriteStatusWorkbook(t *testing.T, dir string, values [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet(StatusSheetName)
	require.NoError(t, err)
	for i, row := range values {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(StatusSheetName, addr, &cells))
	}

	path := filepath.Join(dir, "status.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}
