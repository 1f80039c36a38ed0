package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pageTextWidth = 190.0
	tableFontSize = 8.0
	tableRowPad   = 2.0
)

// renderPDF converts the markdown report to an A4 PDF by walking the
// goldmark AST and mapping each block onto fpdf primitives.
func renderPDF(markdown []byte) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 9)

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(markdown))

	w := &pdfWriter{pdf: pdf, source: markdown, size: 9}
	if err := ast.Walk(doc, w.walk); err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf    *fpdf.Fpdf
	source []byte
	size   float64
	bold   bool
	italic bool
}

func (w *pdfWriter) resetFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont("Arial", style, w.size)
}

func (w *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			w.pdf.Ln(5)
			size := 10.0
			switch node.Level {
			case 1:
				size = 14
			case 2:
				size = 12
			}
			w.pdf.SetFont("Arial", "B", size)
		} else {
			w.pdf.Ln(6)
			w.resetFont()
		}

	case *ast.Paragraph:
		if !entering {
			w.pdf.Ln(6)
		}

	case *ast.Text:
		if entering {
			w.pdf.Write(5, string(node.Text(w.source)))
		}

	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.resetFont()

	case *ast.ListItem:
		if entering {
			w.pdf.Ln(5)
			w.pdf.SetX(14)
			w.pdf.Write(5, "- ")
		}

	case *ast.List:
		if !entering {
			w.pdf.Ln(6)
		}

	case *extast.Table:
		if entering {
			w.renderTable(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (w *pdfWriter) renderTable(table *extast.Table) {
	rows := w.collectRows(table)
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	widths := w.columnWidths(rows)
	lineHeight := 4.0
	rowHeight := lineHeight + tableRowPad

	w.pdf.Ln(1)
	for i, row := range rows {
		if i == 0 {
			w.pdf.SetFont("Arial", "B", tableFontSize)
			w.pdf.SetFillColor(230, 230, 230)
		} else {
			w.pdf.SetFont("Arial", "", tableFontSize)
			w.pdf.SetFillColor(255, 255, 255)
		}

		startX := w.pdf.GetX()
		startY := w.pdf.GetY()
		if startY+rowHeight > 282 {
			w.pdf.AddPage()
			startY = w.pdf.GetY()
		}

		x := startX
		for j, cell := range row {
			if j >= len(widths) {
				break
			}
			mode := "D"
			if i == 0 {
				mode = "FD"
			}
			w.pdf.Rect(x, startY, widths[j], rowHeight, mode)
			w.pdf.SetXY(x+1, startY+1)
			w.pdf.CellFormat(widths[j]-2, lineHeight, w.fitCell(cell, widths[j]-2), "", 0, "L", false, 0, "")
			x += widths[j]
		}
		w.pdf.SetXY(startX, startY+rowHeight)
	}
	w.pdf.Ln(3)
	w.resetFont()
}

// collectRows flattens header and body rows. The header node carries its
// cells directly, so both node kinds walk the same way.
func (w *pdfWriter) collectRows(table *extast.Table) [][]string {
	var rows [][]string
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *extast.TableHeader, *extast.TableRow:
			rows = append(rows, w.rowCells(child))
		}
	}
	return rows
}

func (w *pdfWriter) rowCells(row ast.Node) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if _, ok := cell.(*extast.TableCell); ok {
			cells = append(cells, string(cell.Text(w.source)))
		}
	}
	return cells
}

// columnWidths measures content to size columns, then scales the set to the
// printable width.
func (w *pdfWriter) columnWidths(rows [][]string) []float64 {
	cols := len(rows[0])
	widths := make([]float64, cols)

	w.pdf.SetFont("Arial", "B", tableFontSize)
	for _, row := range rows {
		for i, cell := range row {
			if i >= cols {
				break
			}
			if width := w.pdf.GetStringWidth(cell) + 4; width > widths[i] {
				widths[i] = width
			}
		}
	}

	total := 0.0
	for i := range widths {
		if widths[i] < 12 {
			widths[i] = 12
		}
		total += widths[i]
	}
	scale := pageTextWidth / total
	for i := range widths {
		widths[i] *= scale
	}
	return widths
}

// fitCell truncates cell text to its column, with an ellipsis when cut
func (w *pdfWriter) fitCell(cell string, width float64) string {
	if w.pdf.GetStringWidth(cell) <= width {
		return cell
	}
	runes := []rune(cell)
	for len(runes) > 1 && w.pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
