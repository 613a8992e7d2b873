// Package reportrender renders the confirmed-anomaly repository as an
// .xlsx workbook, JSON, or a console-friendly text summary.
package reportrender

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/message"

	"permfuzz/internal/seed"
)

func cellName(col, row int) string {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return ""
	}
	name, err := excelize.JoinCellName(columnName, row)
	if err != nil {
		return ""
	}
	return name
}

// groupByKind buckets seeds by the kind of their first recorded anomaly.
func groupByKind(seeds []*seed.Seed) map[string][]*seed.Seed {
	byKind := map[string][]*seed.Seed{}
	for _, s := range seeds {
		kind := "UNVERIFIED"
		if len(s.Anomalies) > 0 {
			kind = s.Anomalies[0].Kind.String()
		}
		byKind[kind] = append(byKind[kind], s)
	}
	return byKind
}

// RenderXLSX writes one sheet per anomaly kind, each with a styled header
// row, to w.
func RenderXLSX(w io.Writer, seeds []*seed.Seed) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	byKind := groupByKind(seeds)
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	first := true
	for _, kind := range kinds {
		sheet := kind
		if first {
			f.SetSheetName("Sheet1", sheet)
			first = false
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return err
			}
		}

		headers := []string{"Description", "Interestingness", "Class", "Package"}
		for col, h := range headers {
			cell := cellName(col+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
			_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
		}
		row := 2
		for _, s := range byKind[kind] {
			_ = f.SetCellValue(sheet, cellName(1, row), s.Description())
			_ = f.SetCellValue(sheet, cellName(2, row), s.Interestingness)
			_ = f.SetCellValue(sheet, cellName(3, row), s.Class)
			_ = f.SetCellValue(sheet, cellName(4, row), s.Package)
			row++
		}
	}
	return f.Write(w)
}

// jsonSeed is the shape RenderJSON emits per seed.
type jsonSeed struct {
	Description     string   `json:"description"`
	Interestingness float64  `json:"interestingness"`
	Class           string   `json:"class"`
	Package         string   `json:"package"`
	AnomalyKinds    []string `json:"anomaly_kinds"`
}

// RenderJSON writes the repository as a JSON array to w.
func RenderJSON(w io.Writer, seeds []*seed.Seed) error {
	out := make([]jsonSeed, 0, len(seeds))
	for _, s := range seeds {
		js := jsonSeed{
			Description:     s.Description(),
			Interestingness: s.Interestingness,
			Class:           s.Class,
			Package:         s.Package,
		}
		for _, g := range s.Anomalies {
			js.AnomalyKinds = append(js.AnomalyKinds, g.Kind.String())
		}
		out = append(out, js)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// RenderText writes a console-friendly summary to w: one line per seed plus
// a totals line, using locale-aware number formatting for large counts.
func RenderText(w io.Writer, seeds []*seed.Seed) error {
	p := message.NewPrinter(message.MatchLanguage("en"))
	byKind := groupByKind(seeds)
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		if _, err := p.Fprintf(w, "%s (%d)\n", kind, len(byKind[kind])); err != nil {
			return err
		}
		for _, s := range byKind[kind] {
			if _, err := fmt.Fprintf(w, "  [%.3f] %s\n", s.Interestingness, s.Description()); err != nil {
				return err
			}
		}
	}
	if _, err := p.Fprintf(w, "total confirmed anomalies: %d\n", len(seeds)); err != nil {
		return err
	}
	return nil
}
