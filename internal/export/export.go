package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/prompts"
	"github.com/xuri/excelize/v2"
)

// Format is an artifact rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a user-supplied format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Render encodes the artifact in the given format.
func Render(f Format, a *domain.ExplanationArtifact) ([]byte, error) {
	switch f {
	case FormatJSON:
		return JSON(a)
	case FormatXLSX:
		return XLSX(a)
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

// JSON encodes the artifact with the "lecture name" / "explained slides" keys.
func JSON(a *domain.ExplanationArtifact) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("json write: %w", err)
	}
	return buf.Bytes(), nil
}

const sheet = "Explanations"

// XLSX renders one row per explained slide: slide number, status and text.
func XLSX(a *domain.ExplanationArtifact) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	index, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	title := fmt.Sprintf("%s (%d slides)", a.LectureName, a.PartCount)
	_ = f.SetCellValue(sheet, "A1", title)

	headers := []string{"Slide", "Status", "Explanation"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, text := range a.Explanations {
		row := i + 3
		slide := i + 1
		if i < len(a.Positions) {
			slide = a.Positions[i] + 1
		}
		status := "ok"
		if strings.HasPrefix(text, prompts.PartErrorPrefix) {
			status = "error"
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, slide)
		write(2, status)
		write(3, text)
	}

	_ = f.SetColWidth(sheet, "A", "A", 8)
	_ = f.SetColWidth(sheet, "B", "B", 10)
	_ = f.SetColWidth(sheet, "C", "C", 100)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
