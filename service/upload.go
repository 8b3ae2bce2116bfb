package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"legal-analyzer/logic/ingestion/extract"
	"legal-analyzer/pkg/logger"
	"legal-analyzer/storage/objectstore"
	"legal-analyzer/types"
)

// DefaultMaxUploadSize is the largest file accepted when none is configured.
const DefaultMaxUploadSize int64 = 10 << 20

var (
	ErrUnsupportedFileType = errors.New("only .pdf, .doc, .docx and .txt files are allowed")
	ErrFileTooLarge        = errors.New("file exceeds the maximum upload size")
	ErrEmptyFile           = errors.New("file is empty")
	ErrContentTypeMismatch = errors.New("file content does not match its type")
	ErrExtractionFailed    = errors.New("could not read text from file")
)

// allowedTypes maps an extension to its stored MIME type and the types a client
// may declare or the sniffer may detect for it.
var allowedTypes = map[string]struct {
	canonical string
	accepted  []string
}{
	".pdf": {"application/pdf", []string{"application/pdf"}},
	".doc": {"application/msword", []string{"application/msword", "application/octet-stream", "application/x-ole-storage"}},
	".docx": {
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		[]string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip", "application/x-zip-compressed"},
	},
	".txt": {"text/plain", []string{"text/plain"}},
}

// DocumentStore creates document rows and reads them back.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
}

type TextExtractor interface {
	Text(ctx context.Context, filename string, data []byte) (string, error)
}

// ObjectStore keeps the original bytes of an upload.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
}

type Analyzer interface {
	Analyze(ctx context.Context, req types.AnalyzeRequest) (*types.Analysis, error)
}

// UploadInput is one file submitted for analysis. Content, when set, is used
// instead of the text extracted from Body.
type UploadInput struct {
	Owner       string
	Filename    string
	ContentType string
	Body        io.Reader
	Content     string
}

type UploadResult struct {
	Document *types.Document `json:"document"`
	Analysis *types.Analysis `json:"analysis,omitempty"`
}

type UploadService struct {
	documents DocumentStore
	extractor TextExtractor
	objects   ObjectStore
	analyzer  Analyzer
	maxSize   int64
	logger    *zap.Logger
}

type UploadOption func(*UploadService)

// WithObjectStore keeps uploaded originals in objects.
func WithObjectStore(objects ObjectStore) UploadOption {
	return func(s *UploadService) { s.objects = objects }
}

func WithMaxUploadSize(n int64) UploadOption {
	return func(s *UploadService) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

func NewUploadService(documents DocumentStore, extractor TextExtractor, analyzer Analyzer, log *zap.Logger, opts ...UploadOption) *UploadService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &UploadService{
		documents: documents,
		extractor: extractor,
		analyzer:  analyzer,
		maxSize:   DefaultMaxUploadSize,
		logger:    log.Named("upload"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload validates the file, stores it, records a pending document and runs
// the analysis synchronously. When the analysis fails the created document is
// still returned alongside the error.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	log := logger.WithContext(ctx, s.logger).With(zap.String("filename", in.Filename))
	start := time.Now()

	ext := strings.ToLower(filepath.Ext(in.Filename))
	kind, ok := allowedTypes[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxSize)
	}
	if err := checkContentType(ext, in.ContentType, data); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		if s.extractor == nil || !extract.Supported(in.Filename) {
			return nil, fmt.Errorf("%w: %w", ErrContentRequired, extract.ErrUnsupported)
		}
		content, err = s.extractor.Text(ctx, in.Filename, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
		}
	}

	doc := &types.Document{
		ID:       uuid.NewString(),
		Owner:    in.Owner,
		Filename: filepath.Base(in.Filename),
		Size:     int64(len(data)),
		MimeType: kind.canonical,
	}
	if s.objects != nil {
		doc.StoragePath = objectstore.Key(in.Owner, doc.ID, in.Filename)
		if err := s.objects.Put(ctx, doc.StoragePath, bytes.NewReader(data), doc.Size, doc.MimeType); err != nil {
			return nil, err
		}
	}

	if err := s.documents.CreateDocument(ctx, doc); err != nil {
		s.removeObject(ctx, log, doc.StoragePath)
		return nil, err
	}
	log = log.With(zap.String("document_id", doc.ID))
	log.Info("document uploaded", zap.Int64("size", doc.Size), zap.String("mime_type", doc.MimeType))

	a, err := s.analyzer.Analyze(ctx, types.AnalyzeRequest{DocumentID: doc.ID, Content: content, Owner: in.Owner})
	res := &UploadResult{Document: s.reload(ctx, log, doc), Analysis: a}
	if err != nil {
		return res, fmt.Errorf("analyze document %s: %w", doc.ID, err)
	}
	log.Info("upload processed", zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// checkContentType rejects files whose declared or sniffed type contradicts
// the extension. A missing or generic declared type is not held against them.
func checkContentType(ext, declared string, data []byte) error {
	kind := allowedTypes[ext]
	declared = mediaType(declared)
	if declared != "" && declared != "application/octet-stream" && !contains(kind.accepted, declared) {
		return fmt.Errorf("%w: %s declared as %s", ErrContentTypeMismatch, ext, declared)
	}
	detected := mediaType(http.DetectContentType(data))
	if detected == "application/octet-stream" && ext != ".txt" {
		return nil
	}
	if !contains(kind.accepted, detected) {
		return fmt.Errorf("%w: %s detected as %s", ErrContentTypeMismatch, ext, detected)
	}
	return nil
}

func mediaType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *UploadService) removeObject(ctx context.Context, log *zap.Logger, key string) {
	if s.objects == nil || key == "" {
		return
	}
	if err := s.objects.Remove(context.WithoutCancel(ctx), key); err != nil {
		log.Warn("failed to remove orphaned object", zap.String("key", key), zap.Error(err))
	}
}

// reload returns the stored document so the caller sees its final status.
func (s *UploadService) reload(ctx context.Context, log *zap.Logger, doc *types.Document) *types.Document {
	fresh, err := s.documents.GetDocument(context.WithoutCancel(ctx), doc.ID)
	if err != nil {
		log.Warn("failed to reload document", zap.Error(err))
		return doc
	}
	return fresh
}
