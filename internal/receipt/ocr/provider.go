// Package ocr abstracts text extraction from uploaded receipt documents so
// the pipeline can swap local, cloud or test providers.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Document is the raw upload handed to a provider.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

var supportedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"image/webp":      {},
	"image/tiff":      {},
	"image/heic":      {},
}

// ErrUnsupportedContentType rejects uploads outside the supported set.
var ErrUnsupportedContentType = errors.New("unsupported_content_type")

// Validate checks the declared content type against the supported set.
func (d Document) Validate() error {
	if _, ok := supportedContentTypes[strings.ToLower(d.ContentType)]; !ok {
		supported := make([]string, 0, len(supportedContentTypes))
		for ct := range supportedContentTypes {
			supported = append(supported, ct)
		}
		sort.Strings(supported)
		return fmt.Errorf("%w: %q not in %v", ErrUnsupportedContentType, d.ContentType, supported)
	}
	return nil
}

// Provider extracts raw text from a document. Implementations wrap
// Tesseract, Azure Read, AWS Textract or a fixture for tests.
type Provider interface {
	ExtractText(ctx context.Context, doc Document) (string, error)
}

// ErrNotConfigured is returned by the default provider until a real OCR
// backend is wired in deployment.
var ErrNotConfigured = errors.New("ocr_provider_not_configured")

type unconfiguredProvider struct{}

func (unconfiguredProvider) ExtractText(context.Context, Document) (string, error) {
	return "", ErrNotConfigured
}

// NewUnconfiguredProvider is the default binding. Receipts can still be
// ingested and manually corrected; Process fails until a backend exists.
func NewUnconfiguredProvider() Provider { return unconfiguredProvider{} }

// StaticProvider returns fixed text for every document. Used by tests and
// local development.
type StaticProvider struct {
	Text string
}

func (p StaticProvider) ExtractText(context.Context, Document) (string, error) {
	return p.Text, nil
}
