package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"study-planner/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

// Extraction is the plain text pulled out of an uploaded document.
// A failed parse is not an error: Text is empty and Reason says why.
type Extraction struct {
	Text   string
	Pages  int
	Reason string
}

// Err returns ErrExtractionEmpty when nothing usable was extracted.
func (e Extraction) Err() error {
	if e.Text != "" {
		return nil
	}
	if e.Reason == "" {
		return models.ErrExtractionEmpty
	}
	return fmt.Errorf("%w: %s", models.ErrExtractionEmpty, e.Reason)
}

var (
	pdfMagic  = []byte("%PDF")
	wordText  = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
	wordPara  = regexp.MustCompile(`</w:p>`)
	slideText = regexp.MustCompile(`(?s)<a:t>(.*?)</a:t>`)
)

// ExtractText dispatches on the file extension, falling back to content sniffing for PDFs.
func ExtractText(filename string, data []byte) Extraction {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf" || bytes.HasPrefix(data, pdfMagic):
		return ExtractPDF(data)
	case ext == ".docx":
		return extractDOCX(data)
	case ext == ".pptx":
		return extractPPTX(data)
	case ext == ".xlsx":
		return extractXLSX(data)
	case ext == ".txt" || ext == ".md" || ext == "":
		return finish(string(data), 1)
	default:
		return Extraction{Reason: fmt.Sprintf("unsupported file format: %s", ext)}
	}
}

// ExtractPDF returns the concatenated plain text of every page that yields text.
func ExtractPDF(data []byte) (ext Extraction) {
	// ledongthuc/pdf panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("pdf parser panicked")
			ext = Extraction{Reason: fmt.Sprintf("malformed pdf: %v", r)}
		}
	}()

	if len(data) == 0 {
		return Extraction{Reason: "empty file"}
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Extraction{Reason: fmt.Sprintf("failed to open pdf: %v", err)}
	}

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Debug().Err(err).Int("page", i).Msg("skipping unreadable page")
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		pages = append(pages, pageText)
	}
	ext = finish(strings.Join(pages, "\n"), numPages)
	if ext.Text == "" {
		ext.Reason = "pdf contains no extractable text"
	}
	return ext
}

func extractDOCX(data []byte) Extraction {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Extraction{Reason: fmt.Sprintf("failed to open docx: %v", err)}
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paragraphs []string
	for _, para := range wordPara.Split(content, -1) {
		var line strings.Builder
		for _, m := range wordText.FindAllStringSubmatch(para, -1) {
			line.WriteString(html.UnescapeString(m[1]))
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			paragraphs = append(paragraphs, s)
		}
	}
	return finish(strings.Join(paragraphs, "\n"), 1)
}

func extractPPTX(data []byte) Extraction {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Extraction{Reason: fmt.Sprintf("failed to open pptx: %v", err)}
	}

	var slides []string
	for _, file := range zr.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		var words []string
		for _, m := range slideText.FindAllStringSubmatch(string(body), -1) {
			words = append(words, html.UnescapeString(m[1]))
		}
		if s := strings.TrimSpace(strings.Join(words, " ")); s != "" {
			slides = append(slides, s)
		}
	}
	return finish(strings.Join(slides, "\n\n"), len(slides))
}

func extractXLSX(data []byte) Extraction {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("excelize failed, retrying with tealeg/xlsx")
		return extractXLSXLegacy(data)
	}
	defer f.Close()

	var text strings.Builder
	sheets := f.GetSheetList()
	for _, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		fmt.Fprintf(&text, "## Sheet: %s\n", sheetName)
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
	}
	return finish(text.String(), len(sheets))
}

func extractXLSXLegacy(data []byte) Extraction {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return Extraction{Reason: fmt.Sprintf("failed to open xlsx: %v", err)}
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		fmt.Fprintf(&text, "## Sheet: %s\n", sheet.Name)
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
	}
	return finish(text.String(), len(f.Sheets))
}

func finish(text string, pages int) Extraction {
	text = strings.TrimSpace(text)
	if text == "" {
		return Extraction{Pages: pages, Reason: "document contains no text"}
	}
	return Extraction{Text: text, Pages: pages}
}
