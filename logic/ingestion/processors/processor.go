package processors

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
	spaceRuns    = regexp.MustCompile(`[ \t]{2,}`)
)

// CleanText removes bytes a parser leaves behind that the model cannot use:
// NUL and other control characters, invalid UTF-8, runs of blank lines and
// repeated spaces.
func CleanText(content string) string {
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = controlChars.ReplaceAllString(content, "")
	content = spaceRuns.ReplaceAllString(content, " ")
	content = blankLines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// Processor cleans every document and drops the ones left empty.
func Processor(ctx context.Context, src []*schema.Document) ([]*schema.Document, error) {
	cleanDocs := make([]*schema.Document, 0, len(src))
	for _, doc := range src {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content := CleanText(doc.Content)
		if content == "" {
			continue
		}
		doc.Content = content
		cleanDocs = append(cleanDocs, doc)
	}
	return cleanDocs, nil
}

// Join concatenates documents (PDF pages, for instance) into one text.
func Join(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n\n")
}
