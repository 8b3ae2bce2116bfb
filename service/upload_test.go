package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-analyzer/logic/ingestion/extract"
	"legal-analyzer/types"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakeExtractor) Text(_ context.Context, _ string, _ []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

type failingCreator struct {
	*memGateway
}

func (failingCreator) CreateDocument(context.Context, *types.Document) error {
	return errors.New("insert failed")
}

func newUploadService(gw *memGateway, m *stubModel, ex TextExtractor, opts ...UploadOption) *UploadService {
	return NewUploadService(gw, ex, newService(gw, m), nil, opts...)
}

func TestUploadHappyPath(t *testing.T) {
	gw := newMemGateway()
	m := &stubModel{replies: []string{nonCompeteAnswer}}
	ex := &fakeExtractor{text: "The tenant shall pay rent monthly."}
	objects := newMemObjects()
	svc := newUploadService(gw, m, ex, WithObjectStore(objects))

	res, err := svc.Upload(context.Background(), UploadInput{
		Owner:       "user-1",
		Filename:    "lease.txt",
		ContentType: "text/plain",
		Body:        strings.NewReader("The tenant shall pay rent monthly."),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Analysis)

	doc := res.Document
	assert.Equal(t, types.StatusCompleted, doc.ProcessingStatus)
	assert.Equal(t, "user-1", doc.Owner)
	assert.Equal(t, "text/plain", doc.MimeType)
	assert.EqualValues(t, len("The tenant shall pay rent monthly."), doc.Size)
	assert.Equal(t, "user-1/"+doc.ID+"/lease.txt", doc.StoragePath)
	assert.Equal(t, []types.DocumentStatus{types.StatusPending, types.StatusProcessing, types.StatusCompleted}, gw.statusHistory(doc.ID))

	assert.Equal(t, 1, ex.calls)
	assert.Contains(t, objects.objects, doc.StoragePath)
	assert.Equal(t, "text/plain", objects.types[doc.StoragePath])
	assert.Equal(t, "The tenant shall pay rent monthly.", res.Analysis.OriginalContent)
}

func TestUploadProvidedContentSkipsExtraction(t *testing.T) {
	gw := newMemGateway()
	m := &stubModel{replies: []string{nonCompeteAnswer}}
	ex := &fakeExtractor{err: errors.New("should not be called")}
	svc := newUploadService(gw, m, ex)

	// OLE2 magic; sniffs as application/octet-stream.
	doc := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, bytes.Repeat([]byte{0}, 64)...)
	res, err := svc.Upload(context.Background(), UploadInput{
		Filename:    "offer.doc",
		ContentType: "application/msword",
		Body:        bytes.NewReader(doc),
		Content:     "Employee shall not compete for 1 year",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, ex.calls)
	assert.Equal(t, "application/msword", res.Document.MimeType)
	assert.Empty(t, res.Document.StoragePath)
	assert.Equal(t, "Employee shall not compete for 1 year", res.Analysis.OriginalContent)
}

func TestUploadRejects(t *testing.T) {
	tests := []struct {
		name    string
		in      UploadInput
		max     int64
		wantErr error
	}{
		{
			name:    "extension",
			in:      UploadInput{Filename: "photo.png", Body: strings.NewReader("x")},
			wantErr: ErrUnsupportedFileType,
		},
		{
			name:    "empty",
			in:      UploadInput{Filename: "lease.txt", Body: strings.NewReader("")},
			wantErr: ErrEmptyFile,
		},
		{
			name:    "too large",
			in:      UploadInput{Filename: "lease.txt", Body: strings.NewReader(strings.Repeat("a", 65))},
			max:     64,
			wantErr: ErrFileTooLarge,
		},
		{
			name:    "declared type",
			in:      UploadInput{Filename: "lease.pdf", ContentType: "image/png", Body: strings.NewReader("%PDF-1.7\n")},
			wantErr: ErrContentTypeMismatch,
		},
		{
			name:    "sniffed type",
			in:      UploadInput{Filename: "lease.pdf", ContentType: "application/pdf", Body: strings.NewReader("just some text")},
			wantErr: ErrContentTypeMismatch,
		},
		{
			name:    "binary txt",
			in:      UploadInput{Filename: "lease.txt", Body: bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03})},
			wantErr: ErrContentTypeMismatch,
		},
		{
			name:    "doc without content",
			in:      UploadInput{Filename: "offer.doc", Body: bytes.NewReader([]byte{0xD0, 0xCF, 0x11, 0xE0})},
			wantErr: ErrContentRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newMemGateway()
			m := &stubModel{}
			svc := newUploadService(gw, m, &fakeExtractor{text: "text"}, WithMaxUploadSize(tt.max))

			_, err := svc.Upload(context.Background(), tt.in)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsBadRequest(err))
			assert.Zero(t, m.calls)
			assert.Empty(t, gw.docs)
		})
	}
}

func TestUploadExtractionFailure(t *testing.T) {
	gw := newMemGateway()
	svc := newUploadService(gw, &stubModel{}, &fakeExtractor{err: extract.ErrNoText})

	_, err := svc.Upload(context.Background(), UploadInput{Filename: "scan.txt", Body: strings.NewReader("   ")})
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, extract.ErrNoText)
	assert.True(t, IsBadRequest(err))
	assert.Empty(t, gw.docs)
}

func TestUploadAnalysisFailureReturnsDocument(t *testing.T) {
	gw := newMemGateway()
	m := &stubModel{replies: []string{"not json at all"}}
	svc := newUploadService(gw, m, &fakeExtractor{text: "Some clause."})

	res, err := svc.Upload(context.Background(), UploadInput{Filename: "lease.txt", Body: strings.NewReader("Some clause.")})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Contains(t, err.Error(), res.Document.ID)
	assert.Equal(t, types.StatusFailed, res.Document.ProcessingStatus)
	assert.Nil(t, res.Analysis)
	assert.False(t, IsBadRequest(err))
}

func TestUploadStorageFailureCreatesNothing(t *testing.T) {
	gw := newMemGateway()
	objects := newMemObjects()
	objects.putErr = errors.New("bucket unavailable")
	svc := newUploadService(gw, &stubModel{}, &fakeExtractor{text: "Some clause."}, WithObjectStore(objects))

	_, err := svc.Upload(context.Background(), UploadInput{Filename: "lease.txt", Body: strings.NewReader("Some clause.")})
	require.Error(t, err)
	assert.Empty(t, gw.docs)
}

func TestUploadCreateFailureRemovesObject(t *testing.T) {
	gw := newMemGateway()
	objects := newMemObjects()
	m := &stubModel{}
	svc := NewUploadService(failingCreator{gw}, &fakeExtractor{text: "Some clause."}, newService(gw, m), nil, WithObjectStore(objects))

	_, err := svc.Upload(context.Background(), UploadInput{Filename: "lease.txt", Body: strings.NewReader("Some clause.")})
	require.Error(t, err)
	assert.Empty(t, objects.objects)
	assert.Zero(t, m.calls)
}
