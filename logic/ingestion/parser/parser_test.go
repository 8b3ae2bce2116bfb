package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/document/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>NON-COMPETE AGREEMENT</w:t></w:r></w:p>
    <w:p>
      <w:r><w:t xml:space="preserve">Employee shall not </w:t></w:r>
      <w:r><w:t>compete for 1 year.</w:t></w:r>
    </w:p>
    <w:p><w:r><w:t>Term:</w:t><w:tab/><w:t>12 months</w:t></w:r></w:p>
  </w:body>
</w:document>`

func buildDocx(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDocxParser(t *testing.T) {
	data := buildDocx(t, map[string]string{
		"[Content_Types].xml": `<Types/>`,
		"word/document.xml":   documentXML,
	})

	docs, err := DocxParser{}.Parse(context.Background(), bytes.NewReader(data),
		parser.WithURI("agreement.docx"),
		parser.WithExtraMeta(map[string]any{"owner": "user-1"}))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	lines := strings.Split(docs[0].Content, "\n")
	assert.Equal(t, "NON-COMPETE AGREEMENT", strings.TrimSpace(lines[0]))
	assert.Contains(t, docs[0].Content, "Employee shall not compete for 1 year.")
	assert.Contains(t, docs[0].Content, "Term:\t12 months")
	assert.Equal(t, "agreement.docx", docs[0].ID)
	assert.Equal(t, "user-1", docs[0].MetaData["owner"])
}

func TestDocxParserRejects(t *testing.T) {
	_, err := DocxParser{}.Parse(context.Background(), strings.NewReader("plain text, not a zip"))
	assert.ErrorIs(t, err, ErrNotDocx)

	data := buildDocx(t, map[string]string{"word/styles.xml": "<w:styles/>"})
	_, err = DocxParser{}.Parse(context.Background(), bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrNotDocx)
}
