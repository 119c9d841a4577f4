// Package preprocess converts uploaded order files into the text and page
// images sent to extraction providers.
package preprocess

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/model"
)

// Defaults for Config zero values.
const (
	DefaultMaxPages  = 3
	DefaultMaxFileMB = 50
)

// Config controls preprocessing.
type Config struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	// MaxPages caps the number of PDF pages whose images are forwarded.
	MaxPages  int `yaml:"max_pages" mapstructure:"max_pages"`
	MaxFileMB int `yaml:"max_file_mb" mapstructure:"max_file_mb"`
}

// Error reports a document that could not be preprocessed.
type Error struct {
	Ref string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("preprocessing failed for %s: %v", e.Ref, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TextExtractor extracts text content from PDF files.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Processor turns a file path into a model.Document.
type Processor struct {
	cfg  Config
	text TextExtractor
}

// New creates a Processor that extracts PDF text with pdftotext.
func New(cfg Config) *Processor {
	return NewWithExtractor(cfg, NewPoppler(cfg.PdfToTextPath, 0))
}

// NewWithExtractor creates a Processor with a custom PDF text extractor.
func NewWithExtractor(cfg Config, text TextExtractor) *Processor {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.MaxFileMB <= 0 {
		cfg.MaxFileMB = DefaultMaxFileMB
	}
	return &Processor{cfg: cfg, text: text}
}

// Process reads ref (a file path) and returns its preprocessed form. All
// failures are *Error.
func (p *Processor) Process(ctx context.Context, ref string) (*model.Document, error) {
	doc, err := p.process(ctx, ref)
	if err != nil {
		return nil, &Error{Ref: ref, Err: err}
	}
	return doc, nil
}

func (p *Processor) process(ctx context.Context, ref string) (*model.Document, error) {
	info, err := os.Stat(ref)
	if err != nil {
		return nil, eris.Wrap(err, "stat document")
	}
	if info.IsDir() {
		return nil, eris.New("document is a directory")
	}
	if limit := int64(p.cfg.MaxFileMB) << 20; info.Size() > limit {
		return nil, eris.Errorf("document is %d bytes, limit is %d MB", info.Size(), p.cfg.MaxFileMB)
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, eris.Wrap(err, "read document")
	}
	mediaType := sniff(ref, data)

	doc := &model.Document{
		Ref: ref,
		Metadata: model.DocumentMetadata{
			FileName:  filepath.Base(ref),
			MediaType: mediaType,
			SizeBytes: info.Size(),
			PageCount: 1,
		},
	}

	switch {
	case mediaType == "application/pdf":
		if err := p.processPDF(ctx, doc); err != nil {
			return nil, err
		}
	case isSupportedImage(mediaType):
		doc.Pages = []model.PageImage{{Page: 1, MediaType: mediaType, Data: data}}
	case strings.HasPrefix(mediaType, "text/plain"):
		doc.Text = strings.TrimSpace(string(data))
	default:
		return nil, eris.Errorf("unsupported media type %s", mediaType)
	}

	if strings.TrimSpace(doc.Text) == "" && len(doc.Pages) == 0 {
		return nil, eris.New("no text or images found in document")
	}

	zap.L().Debug("preprocess: document ready",
		zap.String("document", ref),
		zap.String("media_type", mediaType),
		zap.Int("pages", doc.Metadata.PageCount),
		zap.Int("images", len(doc.Pages)),
		zap.Int("text_chars", len(doc.Text)),
	)
	return doc, nil
}

// sniff detects the media type from content, falling back to the extension
// for formats the content sniffer does not know.
func sniff(ref string, data []byte) string {
	mt := http.DetectContentType(data)
	if mt != "application/octet-stream" {
		return mt
	}
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	return mt
}

func isSupportedImage(mediaType string) bool {
	switch mediaType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}
