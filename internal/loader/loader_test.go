package loader

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func mkXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	buf := bytes.NewBuffer(nil)
	_, err := f.WriteTo(buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDetectHeaderPicksFirstMarkerRow(t *testing.T) {
	grid := [][]string{
		{"Trial XYZ export", ""},
		{"Generated 2024-01-01", ""},
		{"Site", "Subject"},
		{"Site", "Subject"},
	}
	assert.Equal(t, 2, DetectHeader(grid, DefaultOptions()))
}

func TestDetectHeaderFallsBackToFirstRow(t *testing.T) {
	grid := [][]string{{"a", "b"}, {"1", "2"}}
	assert.Equal(t, 0, DetectHeader(grid, DefaultOptions()))
}

func TestDetectHeaderRequireAll(t *testing.T) {
	grid := [][]string{
		{"Site", "Notes"},
		{"Site", "Subject Number"},
	}
	opts := DefaultOptions()
	opts.RequireAll = []string{"site", "subject number"}
	assert.Equal(t, 1, DetectHeader(grid, opts))
	assert.Equal(t, 0, DetectHeader(grid, DefaultOptions()))
}

func TestLoadXLSXDropsEmptyRowsAndColumns(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"Schedule report"},
		{},
		{"Site", "Subject", "Unused", "Assessment"},
		{"Site A", "001", "", "Baseline"},
		{"", "", "", ""},
		{"Site B", "002", "", "Week 4"},
	})

	table, err := Load("schedule", blob, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Site", "Subject", "Assessment"}, table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "Week 4", table.Value(1, "Assessment"))
	assert.Equal(t, []string{"001", "002"}, table.Column("Subject"))
	assert.Equal(t, "", table.Value(0, "Unused"))
}

func TestLoadHTMLTable(t *testing.T) {
	html := `<html><body><table>
<tr><th>Site</th><th>Subject</th><th>Upload Date</th></tr>
<tr><td>Site A</td><td>001</td><td>2024-01-09</td></tr>
</table></body></html>`

	table, err := Load("assets", []byte(html), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Site", "Subject", "Upload Date"}, table.Columns)
	assert.Equal(t, "2024-01-09", table.Value(0, "Upload Date"))
}

func TestLoadCSVWithSemicolons(t *testing.T) {
	csv := "\xEF\xBB\xBFStudy Procedure ID;Submitted Date\nA-1;2024-01-10\n;\nA-2;\n"
	table, err := Load("forms", []byte(csv), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Study Procedure ID", "Submitted Date"}, table.Columns)
	assert.Equal(t, 2, table.Len())
}

func TestLoadDelimitedWithTitleLine(t *testing.T) {
	csv := "Trial XYZ schedule export\nSite;Subject;Visit\nA;1;V1\nB;2;V2\n"
	table, err := Load("schedule", []byte(csv), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Site", "Subject", "Visit"}, table.Columns)
	assert.Equal(t, []string{"A", "B"}, table.Column("Site"))

	tsv := "Asset upload report, exported 2024-03-01\nSite\tSubject\tUpload Date\nA\t1\t2024-01-09\n"
	table, err = Load("assets", []byte(tsv), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Site", "Subject", "Upload Date"}, table.Columns)
	assert.Equal(t, "2024-01-09", table.Value(0, "Upload Date"))
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ',', sniffDelimiter([]byte("a,b,c\n1,2,3\n")))
	assert.Equal(t, ';', sniffDelimiter([]byte("Title, with comma\n\na;b\n1;2\n")))
	assert.Equal(t, '\t', sniffDelimiter([]byte("x\ty\n1\t2\n")))
	assert.Equal(t, ',', sniffDelimiter([]byte("single column\n")))
}

func TestLoadNamesBlankAndDuplicateColumns(t *testing.T) {
	csv := "Site,,Site\nA,x,B\n"
	table, err := Load("t", []byte(csv), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Site", "column_2", "Site (2)"}, table.Columns)
}

func TestLoadRejectsUnreadableInput(t *testing.T) {
	cases := map[string][]byte{
		"empty":      nil,
		"binary":     {0x00, 0x01, 0x02, 0xff},
		"broken zip": append([]byte("PK\x03\x04"), []byte("garbage")...),
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load("assets", blob, DefaultOptions())
			var fe *FormatError
			require.True(t, errors.As(err, &fe), "err=%v", err)
			assert.Equal(t, "assets", fe.Table)
		})
	}
}
