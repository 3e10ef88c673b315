package ocr

import (
	"context"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// Reader runs the label upload flow: prepare the photo, then recognise it.
type Reader struct {
	recognizer Recognizer
	maxEdge    int
	logger     *slog.Logger
}

func NewReader(recognizer Recognizer, maxEdge int, logger *slog.Logger) *Reader {
	return &Reader{recognizer: recognizer, maxEdge: maxEdge, logger: logger}
}

func (r *Reader) ReadLabel(ctx context.Context, upload io.Reader, uploadSize int64) (string, error) {
	prepared, err := PrepareUpload(upload, r.maxEdge)
	if err != nil {
		return "", err
	}

	r.logger.Info("label prepared",
		"format", prepared.Format,
		"upload_size", humanize.Bytes(uint64(uploadSize)),
		"jpeg_size", humanize.Bytes(uint64(len(prepared.JPEG))),
		"original", []int{prepared.OriginalWidth, prepared.OriginalHeight},
		"scaled", []int{prepared.Width, prepared.Height},
	)

	return r.recognizer.DetectText(ctx, prepared.JPEG)
}
