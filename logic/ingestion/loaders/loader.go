package loaders

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	"legal-analyzer/logic/ingestion/extract"
	"legal-analyzer/logic/ingestion/processors"
)

// FileLoader reads documents from the local filesystem with the same parsers
// the upload path uses.
type FileLoader struct {
	loader document.Loader
}

func NewFileLoader(ctx context.Context) (*FileLoader, error) {
	p, err := extract.Parser(ctx)
	if err != nil {
		return nil, err
	}
	l, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      p,
	})
	if err != nil {
		return nil, fmt.Errorf("create file loader: %w", err)
	}
	return &FileLoader{loader: l}, nil
}

// Load parses the file at path and returns its cleaned documents.
func (l *FileLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	docs, err := l.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return processors.Processor(ctx, docs)
}
