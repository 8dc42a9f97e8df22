package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// LoadPDFPages extracts one plain-text string per page, in page order. A page
// that fails to extract becomes an empty string so page numbering stays
// aligned with the source document.
func LoadPDFPages(ctx context.Context, path string) ([]string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	logger := logutil.GetLogger(ctx).With(zap.String("path", path))
	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("page extraction failed", zap.Int("page", i), zap.Error(err))
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	logger.Info("pdf extracted", zap.Int("pages", total))
	return pages, nil
}
