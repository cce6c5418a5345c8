package export

import (
	"fmt"
	"io"
	"os"
	"strings"

	"HealthAssist/internal/session"

	"github.com/go-pdf/fpdf"
)

// Transcript renders the conversation as "Q: ..." / "A: ..." blocks
// separated by a blank line
func Transcript(turns []session.Turn) string {
	blocks := make([]string, 0, len(turns))
	for _, t := range turns {
		prefix := "A:"
		if t.Role == session.RoleUser {
			prefix = "Q:"
		}
		blocks = append(blocks, prefix+" "+t.PlainText())
	}
	return strings.Join(blocks, "\n\n")
}

// WriteTXT writes text as-is
func WriteTXT(w io.Writer, text string) error {
	if _, err := io.WriteString(w, text); err != nil {
		return fmt.Errorf("failed to write text export: %w", err)
	}
	return nil
}

// Section is one titled block of a PDF export. Rows are set as a
// single-column table, Text as wrapped paragraphs.
type Section struct {
	Heading string
	Rows    []string
	Text    string
}

// PDFOption configures a PDF export
type PDFOption func(*pdfConfig)

type pdfConfig struct {
	fontPath string
}

// WithUTF8Font embeds the TrueType font at path so any script renders.
// Without it the core Helvetica font is used, which only covers cp1252.
func WithUTF8Font(path string) PDFOption {
	return func(c *pdfConfig) {
		c.fontPath = path
	}
}

// WritePDF writes a titled, wrapped and paginated text dump
func WritePDF(w io.Writer, title, text string, opts ...PDFOption) error {
	return WritePDFSections(w, title, []Section{{Text: text}}, opts...)
}

// WritePDFSections writes a titled document made of sections
func WritePDFSections(w io.Writer, title string, sections []Section, opts ...PDFOption) error {
	var cfg pdfConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	family := "Helvetica"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if cfg.fontPath != "" {
		family = "body"
		pdf.AddUTF8Font(family, "", cfg.fontPath)
		pdf.AddUTF8Font(family, "B", cfg.fontPath)
		tr = func(s string) string { return s }
	}
	pdf.SetTitle(title, true)
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont(family, "B", 18)
	pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for _, sec := range sections {
		if sec.Heading != "" {
			pdf.SetFont(family, "B", 13)
			pdf.SetFillColor(220, 235, 245)
			pdf.CellFormat(0, 8, tr(sec.Heading), "1", 1, "L", true, 0, "")
		}
		pdf.SetFont(family, "", 11)
		for _, row := range sec.Rows {
			pdf.MultiCell(0, 6, tr(row), "1", "L", false)
		}
		if sec.Text != "" {
			pdf.MultiCell(0, 6, tr(sec.Text), "", "L", false)
		}
		pdf.Ln(4)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf export: %w", err)
	}
	return nil
}

// ToFile creates path and hands it to write. A failed write removes the
// partial file.
func ToFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
