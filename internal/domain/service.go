package domain

import (
	"context"
	"image"
	"io"
)

// Decoder turns a selected file into an UploadedImage.
type Decoder interface {
	Decode(ctx context.Context, filename, declaredMime string, data []byte) (*UploadedImage, error)
}

// Enhancer is the enhancement stage. Implementations take one image, may block,
// may fail with an *EnhancementError and return exactly one image with the
// same displayable shape.
type Enhancer interface {
	Enhance(ctx context.Context, requestID uint64, img *UploadedImage) (*EnhancedResult, error)
}

type Renderer interface {
	Preview(img image.Image, settings AdjustmentSettings) *image.NRGBA
	Export(w io.Writer, img image.Image, settings AdjustmentSettings) (ExportInfo, error)
}

type ExportInfo struct {
	MimeType  string
	Extension string
	Width     int
	Height    int
}

type EventPublisher interface {
	Publish(ctx context.Context, event SessionEvent) error
	Close() error
}

type SessionService interface {
	CreateSession(ctx context.Context) (Snapshot, error)
	GetSession(ctx context.Context, id string) (Snapshot, error)
	IngestFile(ctx context.Context, id, filename, declaredMime string, data []byte) (Snapshot, error)
	SetAdjustment(ctx context.Context, id string, ch Channel, value int) (Snapshot, error)
	Original(ctx context.Context, id string) (*UploadedImage, error)
	Preview(ctx context.Context, id string, w io.Writer) (ExportInfo, error)
	Export(ctx context.Context, id string, w io.Writer) (ExportInfo, string, error)
}
