// Package reader loads the raw content of a knowledge source by kind.
package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/quka-ai/kbcore/pkg/reader/pdf"
	"github.com/quka-ai/kbcore/pkg/reader/web"
	"github.com/quka-ai/kbcore/pkg/types"
)

var (
	ErrUnsupportedSourceKind = errors.New("unsupported source kind")
	ErrEmptyContent          = errors.New("source has no content")
	ErrNoObjectStorage       = errors.New("object storage is not configured")
)

var markupPattern = regexp.MustCompile(`(?i)<(p|div|h[1-6]|ul|ol|li|table|article|section|blockquote|pre|br)[\s/>]`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LooksLikeHTML reports whether s contains block level markup.
func LooksLikeHTML(s string) bool {
	return markupPattern.MatchString(s)
}

// ObjectGetter is the read side of object storage.
type ObjectGetter interface {
	DownloadFile(ctx context.Context, key string) (*types.StoredObject, error)
}

// Document is the raw content of a source. HTML selects the structural
// chunker.
type Document struct {
	Text         string
	HTML         bool
	LastModified string
}

type Reader struct {
	fetcher *web.Fetcher
	objects ObjectGetter
}

func New(fetcher *web.Fetcher, objects ObjectGetter) *Reader {
	if fetcher == nil {
		fetcher = web.NewFetcher(0)
	}
	return &Reader{fetcher: fetcher, objects: objects}
}

func (r *Reader) Read(ctx context.Context, src types.KnowledgeSource) (*Document, error) {
	var (
		doc *Document
		err error
	)
	switch src.Kind {
	case types.SOURCE_KIND_URL:
		doc, err = r.readURL(ctx, src.URL)
	case types.SOURCE_KIND_PDF:
		doc, err = r.readPDF(ctx, src.Locator)
	case types.SOURCE_KIND_TXT:
		doc, err = r.readTXT(ctx, src.Locator)
	case types.SOURCE_KIND_ARTICLE:
		doc = &Document{Text: src.Content, HTML: LooksLikeHTML(src.Content)}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSourceKind, src.Kind)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyContent
	}
	return doc, nil
}

func (r *Reader) readURL(ctx context.Context, url string) (*Document, error) {
	page, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	isHTML := strings.Contains(page.ContentType, "html") || (page.ContentType == "" && LooksLikeHTML(page.Body))
	return &Document{Text: page.Body, HTML: isHTML, LastModified: page.LastModified}, nil
}

func (r *Reader) download(ctx context.Context, key string) ([]byte, error) {
	if r.objects == nil {
		return nil, ErrNoObjectStorage
	}
	obj, err := r.objects.DownloadFile(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return obj.Body, nil
}

func (r *Reader) readPDF(ctx context.Context, key string) (*Document, error) {
	raw, err := r.download(ctx, key)
	if err != nil {
		return nil, err
	}
	text, err := pdf.ExtractText(raw)
	if err != nil {
		return nil, err
	}
	return &Document{Text: text}, nil
}

func (r *Reader) readTXT(ctx context.Context, key string) (*Document, error) {
	raw, err := r.download(ctx, key)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		raw = bytes.ToValidUTF8(raw, []byte("�"))
	}
	return &Document{Text: string(raw)}, nil
}
