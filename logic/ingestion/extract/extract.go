// Package extract turns uploaded files into plain text for analysis.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document/parser"

	docparser "legal-analyzer/logic/ingestion/parser"
	"legal-analyzer/logic/ingestion/processors"
)

var (
	// ErrUnsupported is returned for formats with no text extractor (.doc).
	ErrUnsupported = errors.New("text extraction not supported for this file type")
	// ErrNoText means the file parsed but held no usable text, e.g. a scanned PDF.
	ErrNoText = errors.New("no text could be extracted")
)

// Extractor picks a parser by file extension.
type Extractor struct {
	parser parser.Parser
}

// New builds an extractor for .pdf, .docx and .txt files.
func New(ctx context.Context) (*Extractor, error) {
	p, err := Parser(ctx)
	if err != nil {
		return nil, err
	}
	return &Extractor{parser: p}, nil
}

// Parser returns the extension-dispatching eino parser used by the extractor.
func Parser(ctx context.Context) (parser.Parser, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("create pdf parser: %w", err)
	}
	ext, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers: map[string]parser.Parser{
			".pdf":  pdfParser,
			".docx": docparser.DocxParser{},
			".txt":  parser.TextParser{},
		},
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("create ext parser: %w", err)
	}
	return ext, nil
}

// Supported reports whether text can be extracted from filename.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".docx", ".txt":
		return true
	}
	return false
}

// Text extracts and cleans the text of one file.
func (e *Extractor) Text(ctx context.Context, filename string, data []byte) (string, error) {
	if !Supported(filename) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(filename))
	}
	// ExtParser dispatches on the URI extension, which must be lower case.
	uri := strings.TrimSuffix(filename, filepath.Ext(filename)) + strings.ToLower(filepath.Ext(filename))
	docs, err := e.parser.Parse(ctx, bytes.NewReader(data), parser.WithURI(uri))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", filename, err)
	}
	docs, err = processors.Processor(ctx, docs)
	if err != nil {
		return "", err
	}
	text := processors.Join(docs)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
