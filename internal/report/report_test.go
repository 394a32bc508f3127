package report_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Jules02/NLQ-Agent/internal/domain"
	"github.com/Jules02/NLQ-Agent/internal/report"
)

func TestFormatActivityReportEmpty(t *testing.T) {
	assert.Equal(t, report.NoActivityMessage, report.FormatActivityReport(nil))
	assert.Equal(t, "No activity data found for the specified period.", report.FormatActivityReport([]report.ActivityRow{}))
}

func TestSingleRowReport(t *testing.T) {
	rows, err := report.FormatActivityData([]map[string]any{
		{"date": "2024-01-05", "report_id": "R1", "hours": 4, "status": "approved"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	out := report.FormatActivityReport(rows)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "📊 Activity Report", lines[0])
	assert.Equal(t, strings.Repeat("=", 50), lines[1])
	assert.Equal(t, "Period: 2024-01-05 to 2024-01-05", lines[2])
	assert.Equal(t, "Total Entries: 1", lines[3])
	assert.Equal(t, "Total Hours: 4.0", lines[4])
	assert.Equal(t, strings.Repeat("-", 50), lines[5])
	assert.Equal(t, "📅 2024-01-05 | ID: R1 | Hours: 4.0 | Status: Approved", lines[6])
}

func TestFormatActivityDataNormalises(t *testing.T) {
	rows, err := report.FormatActivityData([]map[string]any{
		{"date": []byte("2024-01-03"), "report_id": int64(7), "hours": []byte("7.50"), "status": "pENDING"},
		{"date": time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), "hours": nil, "status": nil},
		{"date": "2024-01-06 00:00:00", "report_id": "R3", "hours": "2", "status": []byte("REJECTED")},
	})
	require.NoError(t, err)
	assert.Equal(t, []report.ActivityRow{
		{Date: "2024-01-09", ReportID: "N/A", Hours: 0, Status: ""},
		{Date: "2024-01-06", ReportID: "R3", Hours: 2, Status: "Rejected"},
		{Date: "2024-01-03", ReportID: "7", Hours: 7.5, Status: "Pending"},
	}, rows)

	out := report.FormatActivityReport(rows)
	assert.Contains(t, out, "Period: 2024-01-03 to 2024-01-09")
	assert.Contains(t, out, "Total Entries: 3")
	assert.Contains(t, out, "Total Hours: 9.5")
}

func TestUndatedRowsSortLast(t *testing.T) {
	rows, err := report.FormatActivityData([]map[string]any{
		{"report_id": "R0", "hours": 1, "status": "pending"},
		{"date": "2024-01-05", "report_id": "R1", "hours": 4, "status": "approved"},
		{"date": "2024-01-07", "report_id": "R2", "hours": 2, "status": "approved"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-01-07", rows[0].Date)
	assert.Equal(t, "2024-01-05", rows[1].Date)
	assert.Equal(t, report.MissingPlaceholder, rows[2].Date)

	lines := strings.Split(report.FormatActivityReport(rows), "\n")
	assert.Equal(t, "Period: 2024-01-05 to 2024-01-07", lines[2])
}

func TestFormatActivityDataRejectsBadHours(t *testing.T) {
	_, err := report.FormatActivityData([]map[string]any{{"date": "2024-01-01", "hours": "lots"}})
	assert.ErrorContains(t, err, "not a number")

	_, err = report.FormatActivityData([]map[string]any{{"date": "2024-01-01", "hours": true}})
	assert.ErrorContains(t, err, "unsupported value")
}

func TestFromEntries(t *testing.T) {
	rows := report.FromEntries([]domain.ActivityEntry{
		{ReportID: "A", Date: "2024-02-01", Hours: 8, Status: "approved"},
		{ReportID: "B", Date: "2024-02-03", Hours: 6.25, Status: "Pending"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "B", rows[0].ReportID)
	assert.Equal(t, "Approved", rows[1].Status)
	assert.InDelta(t, 14.25, report.TotalHours(rows), 1e-9)
}

func TestExportXLSX(t *testing.T) {
	rows := []report.ActivityRow{
		{Date: "2024-01-06", ReportID: "R2", Hours: 3.5, Status: "Approved"},
		{Date: "2024-01-05", ReportID: "R1", Hours: 4, Status: "Pending"},
	}
	var buf bytes.Buffer
	require.NoError(t, report.ExportXLSX(&buf, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"Date", "Report ID", "Hours", "Status"}, got[0])
	assert.Equal(t, []string{"2024-01-06", "R2", "3.5", "Approved"}, got[1])
	assert.Equal(t, "Total", got[3][0])
	assert.Equal(t, "7.5", got[3][2])
}
