package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"book-reader/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
)

type Loader interface {
	Load(filePath string) (models.Document, error)
}

// FileLoader extracts normalized text from PDF, TXT and DOCX files.
type FileLoader struct {
	MaxFileSize int64
}

const defaultMaxFileSize = 100 << 20

func NewFileLoader(maxFileSize int64) *FileLoader {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &FileLoader{MaxFileSize: maxFileSize}
}

// DetectFormat maps a file extension to a supported format.
func DetectFormat(filePath string) (models.Format, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return models.FormatPDF, nil
	case ".docx":
		return models.FormatDOCX, nil
	case ".txt":
		return models.FormatTXT, nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}
}

// Load reads filePath and returns its normalized text.
func (l *FileLoader) Load(filePath string) (models.Document, error) {
	format, err := DetectFormat(filePath)
	if err != nil {
		return models.Document{}, err
	}

	stat, err := os.Stat(filePath)
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: %v", models.ErrRead, err)
	}
	if stat.IsDir() {
		return models.Document{}, fmt.Errorf("%w: %s is a directory", models.ErrRead, filePath)
	}
	if stat.Size() > l.MaxFileSize {
		return models.Document{}, fmt.Errorf("%w: %s is %d bytes, limit is %d", models.ErrRead, filePath, stat.Size(), l.MaxFileSize)
	}

	var raw string
	switch format {
	case models.FormatPDF:
		raw, err = parsePDF(filePath, stat.Size())
	case models.FormatDOCX:
		raw, err = parseDOCX(filePath)
	case models.FormatTXT:
		raw, err = parseText(filePath)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: %s: %v", models.ErrRead, filePath, err)
	}

	text := Normalize(raw)
	if text == "" {
		return models.Document{}, fmt.Errorf("%w: no text extracted from %s", models.ErrRead, filePath)
	}
	log.Debug().Str("path", filePath).Str("format", string(format)).Int("chars", len(text)).Msg("Loaded document")
	return models.Document{Path: filePath, Format: format, Text: text}, nil
}

func parsePDF(filePath string, size int64) (text string, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(f, size)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %v", i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func parseDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return extractTextFromXML(content)
}

func parseText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// extractTextFromXML keeps the <w:t> runs of a WordprocessingML body and
// turns paragraph and break elements into newlines.
func extractTextFromXML(xmlContent string) (string, error) {
	if !strings.Contains(xmlContent, "<") {
		return xmlContent, nil
	}
	dec := xml.NewDecoder(strings.NewReader(xmlContent))
	dec.Strict = false

	var text strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx body: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				text.WriteString(" ")
			case "br", "cr":
				text.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}
	return text.String(), nil
}

// Normalize drops invalid UTF-8, control characters and the byte order mark,
// collapses whitespace runs to a single space and trims the result.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToValidUTF8(text, "")

	var sb strings.Builder
	sb.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case unicode.IsControl(r), r == '\ufeff':
			continue
		}
		if pendingSpace && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pendingSpace = false
		sb.WriteRune(r)
	}
	return sb.String()
}
