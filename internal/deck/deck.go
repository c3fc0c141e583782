// Package deck assembles evaluated slide tables into a deck artifact
// and stores it. The artifact is a self-contained JSON document a
// rendering front end turns into presentation slides; styling travels
// with each row so the renderer stays dumb.
package deck

import (
	"fmt"
	"strings"
	"time"

	"github.com/expertsure/expertsure/internal/engine"
)

// Table styling applied by renderers. Colors are hex RGB without the
// leading hash, matching presentation tooling conventions.
const (
	HeaderFill      = "1F4E79"
	HeaderFontColor = "FFFFFF"
	GroupHeaderFill = "F2F2F2"
	FontName        = "Calibri"
	TitleFontSize   = 28
	BodyFontSize    = 11
)

// CellStyle describes how a rendered cell is drawn.
type CellStyle struct {
	Fill      string `json:"fill,omitempty"`
	FontColor string `json:"font_color,omitempty"`
	Bold      bool   `json:"bold,omitempty"`
	Align     string `json:"align"` // "left", "center", "right"
}

// SlideDoc is one slide of the artifact.
type SlideDoc struct {
	Number     int                   `json:"number"`
	Title      string                `json:"title"`
	Table      engine.TableStructure `json:"table"`
	RowStyles  []CellStyle           `json:"row_styles"`
	Commentary string                `json:"commentary,omitempty"`
}

// Document is the complete deck artifact.
type Document struct {
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name"`
	GeneratedAt time.Time  `json:"generated_at"`
	Slides      []SlideDoc `json:"slides"`
}

// NewSlide builds a slide document from an evaluated table, assigning
// a style to each row by its tag.
func NewSlide(number int, table *engine.TableStructure, commentary string) SlideDoc {
	styles := make([]CellStyle, len(table.Rows))
	for i, row := range table.Rows {
		switch row.Style {
		case engine.StyleHeader:
			styles[i] = CellStyle{Fill: GroupHeaderFill, Bold: true, Align: "left"}
		case engine.StyleAggregate:
			styles[i] = CellStyle{Bold: true, Align: "right"}
		default:
			styles[i] = CellStyle{Align: "right"}
		}
	}

	return SlideDoc{
		Number:     number,
		Title:      table.Title,
		Table:      *table,
		RowStyles:  styles,
		Commentary: commentary,
	}
}

// Commentary derives a short narrative for a slide from its evaluated
// table: the aggregate row when one exists, otherwise the data shape.
func Commentary(table *engine.TableStructure) string {
	if len(table.Columns) == 0 {
		return ""
	}

	for _, row := range table.Rows {
		if row.Style != engine.StyleAggregate {
			continue
		}
		parts := make([]string, 0, len(table.Columns))
		for i, col := range table.Columns {
			if i >= len(row.Cells) || row.Cells[i] == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s %s", engine.FormatHeader(col), row.Cells[i]))
		}
		if len(parts) == 0 {
			break
		}
		return fmt.Sprintf("%s across all components: %s.", row.Label, strings.Join(parts, ", "))
	}

	dataRows := 0
	for _, row := range table.Rows {
		if row.Style == engine.StyleData {
			dataRows++
		}
	}
	return fmt.Sprintf("%s summarizes %d rows across %d metrics.",
		table.Title, dataRows, len(table.Columns))
}
