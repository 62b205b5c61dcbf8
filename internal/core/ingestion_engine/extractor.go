package ingestion_engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"code.sajari.com/docconv"

	"github.com/paul268484/document-mining/internal/core"
)

var _ core.TextExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor converts stored files into plain text using sajari/docconv.
// Plain text and markdown skip the converter entirely.
type DocconvExtractor struct{}

func NewDocconvExtractor() *DocconvExtractor {
	return &DocconvExtractor{}
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, filePath string, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	if isPlainText(mimeType) {
		data, err := io.ReadAll(f)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", filePath, err)
		}
		return string(data), nil
	}

	res, err := docconv.Convert(f, mimeType, false)
	if err != nil {
		return "", fmt.Errorf("extract %s (%s): %w", filePath, mimeType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Body) == "" {
		return "", fmt.Errorf("%w: no text extracted from %s", core.ErrInvalidInput, filePath)
	}
	return res.Body, nil
}

func isPlainText(mimeType string) bool {
	switch {
	case mimeType == "", mimeType == "application/octet-stream":
		return true
	case strings.HasPrefix(mimeType, "text/"):
		return true
	case mimeType == "application/json", mimeType == "text/markdown":
		return true
	}
	return false
}
