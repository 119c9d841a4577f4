package preprocess

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/model"
)

// processPDF validates the PDF, extracts its text and collects embedded page
// images (scans) from the first MaxPages pages.
func (p *Processor) processPDF(ctx context.Context, doc *model.Document) error {
	f, err := os.Open(doc.Ref)
	if err != nil {
		return eris.Wrap(err, "open pdf")
	}
	defer f.Close() //nolint:errcheck

	pdf, err := api.ReadValidateAndOptimize(f, pdfmodel.NewDefaultConfiguration())
	if err != nil {
		return eris.Wrap(err, "pdfcpu read")
	}
	doc.Metadata.PageCount = pdf.PageCount

	text, err := p.text.ExtractText(ctx, doc.Ref)
	if err != nil || strings.TrimSpace(text) == "" {
		switch {
		case errors.Is(err, ErrNoTextTool):
			zap.L().Debug("preprocess: pdftotext missing, using pdf content streams", zap.String("document", doc.Ref))
		case err != nil:
			zap.L().Warn("preprocess: text extractor failed, using pdf content streams",
				zap.String("document", doc.Ref),
				zap.Error(err),
			)
		}
		text = contentStreamText(pdf)
	}
	doc.Text = strings.TrimSpace(text)

	pages := min(pdf.PageCount, p.cfg.MaxPages)
	for pageNr := 1; pageNr <= pages; pageNr++ {
		doc.Pages = append(doc.Pages, pageImages(pdf, pageNr)...)
	}
	return nil
}

// pageImages returns the JPEG and PNG images embedded in one page.
func pageImages(pdf *pdfmodel.Context, pageNr int) []model.PageImage {
	imgs, err := pdfcpu.ExtractPageImages(pdf, pageNr, false)
	if err != nil {
		zap.L().Debug("preprocess: page image extraction failed", zap.Int("page", pageNr), zap.Error(err))
		return nil
	}

	objNrs := make([]int, 0, len(imgs))
	for nr := range imgs {
		objNrs = append(objNrs, nr)
	}
	sort.Ints(objNrs)

	var out []model.PageImage
	for _, nr := range objNrs {
		img := imgs[nr]
		var mediaType string
		switch strings.ToLower(img.FileType) {
		case "jpg", "jpeg":
			mediaType = "image/jpeg"
		case "png":
			mediaType = "image/png"
		default:
			continue
		}
		data, err := io.ReadAll(img)
		if err != nil || len(data) == 0 {
			continue
		}
		out = append(out, model.PageImage{Page: pageNr, MediaType: mediaType, Data: data})
	}
	return out
}

// contentStreamText is a best-effort text recovery from page content
// streams, used when pdftotext is unavailable.
func contentStreamText(pdf *pdfmodel.Context) string {
	var sb strings.Builder
	for pageNr := 1; pageNr <= pdf.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(pdf, pageNr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		if t := showText(data); t != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(t)
		}
	}
	return sb.String()
}

var pdfString = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// showText collects the string operands of Tj, TJ and ' operators.
func showText(stream []byte) string {
	var sb strings.Builder
	for _, line := range bytes.Split(stream, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfString.FindAllSubmatch(line, -1) {
				sb.WriteString(unescape(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			sb.WriteByte('\n')
			for _, m := range pdfString.FindAllSubmatch(line, -1) {
				sb.WriteString(unescape(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSpace(sb.String())
}

var pdfEscapes = strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n", `\t`, "\t", `\r`, "")

func unescape(b []byte) string {
	return pdfEscapes.Replace(string(b))
}
