package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"trialsnap/internal/util"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}

	errEmptyGrid = errors.New("no cells found")
)

// ReadGrid turns a raw export into an untyped cell grid. Workbooks are read with
// excelize, HTML tables (the usual content of ".xls" downloads from web EDC
// systems) with goquery, and anything else as delimited text.
func ReadGrid(blob []byte) ([][]string, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil, errEmptyGrid
	}

	var (
		grid [][]string
		err  error
	)
	switch {
	case bytes.HasPrefix(blob, zipMagic), bytes.HasPrefix(blob, oleMagic):
		grid, err = readWorkbook(blob)
	case looksLikeHTML(blob):
		grid, err = readHTMLTable(blob)
	default:
		grid, err = readDelimited(blob)
	}
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, errEmptyGrid
	}
	return rectangular(grid), nil
}

func readWorkbook(blob []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if hasContent(rows) {
			return rows, nil
		}
	}
	return nil, errEmptyGrid
}

func looksLikeHTML(blob []byte) bool {
	head := blob
	if len(head) > 4096 {
		head = head[:4096]
	}
	lower := bytes.ToLower(bytes.TrimSpace(bytes.TrimPrefix(head, utf8BOM)))
	return bytes.HasPrefix(lower, []byte("<")) && bytes.Contains(bytes.ToLower(blob), []byte("<table"))
}

func readHTMLTable(blob []byte) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}

	var grid [][]string
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := [][]string{}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			rows = append(rows, cells)
		})
		if hasContent(rows) {
			grid = rows
			return false
		}
		return true
	})
	if grid == nil {
		return nil, errEmptyGrid
	}
	return grid, nil
}

func readDelimited(blob []byte) ([][]string, error) {
	blob = bytes.TrimPrefix(blob, utf8BOM)
	if bytes.IndexByte(blob, 0) >= 0 || !utf8.Valid(blob) {
		return nil, errors.New("binary content")
	}

	reader := csv.NewReader(bytes.NewReader(blob))
	reader.Comma = sniffDelimiter(blob)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var grid [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read delimited record: %w", err)
		}
		grid = append(grid, record)
	}
	if !hasContent(grid) {
		return nil, errEmptyGrid
	}
	return grid, nil
}

const sniffLines = 20

// sniffDelimiter picks the candidate whose per-line count agrees across the
// most of the leading non-blank lines, so a title line above the header
// does not decide it.
func sniffDelimiter(blob []byte) rune {
	var lines []string
	for _, line := range strings.Split(string(blob), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == sniffLines {
			break
		}
	}

	best, bestLines, bestCount := ',', 0, 0
	for _, candidate := range []rune{',', ';', '\t', '|'} {
		freq := map[int]int{}
		for _, line := range lines {
			if n := strings.Count(line, string(candidate)); n > 0 {
				freq[n]++
			}
		}
		for count, nLines := range freq {
			if nLines > bestLines || (nLines == bestLines && count > bestCount) {
				best, bestLines, bestCount = candidate, nLines, count
			}
		}
	}
	return best
}

func hasContent(rows [][]string) bool {
	for _, row := range rows {
		for _, cell := range row {
			if !util.IsBlank(cell) {
				return true
			}
		}
	}
	return false
}

func rectangular(grid [][]string) [][]string {
	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	out := make([][]string, len(grid))
	for i, row := range grid {
		padded := make([]string, width)
		for j, cell := range row {
			padded[j] = strings.TrimSpace(cell)
		}
		out[i] = padded
	}
	return out
}
