package processor

import (
	"bytes"
	"context"
	"time"

	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/domain"
)

// StubEnhancer stands in for a real enhancement model: it waits a fixed delay
// and hands back the input unchanged.
type StubEnhancer struct {
	delay time.Duration
}

var _ domain.Enhancer = (*StubEnhancer)(nil)

func NewStubEnhancer(delay time.Duration) *StubEnhancer {
	if delay < 0 {
		delay = 0
	}
	zlog.Logger.Info().Dur("delay", delay).Msg("StubEnhancer initialized")
	return &StubEnhancer{delay: delay}
}

func (e *StubEnhancer) Enhance(ctx context.Context, requestID uint64, img *domain.UploadedImage) (*domain.EnhancedResult, error) {
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, domain.NewEnhancementError(requestID, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, domain.NewEnhancementError(requestID, err)
	}

	return &domain.EnhancedResult{
		RequestID: requestID,
		MimeType:  img.MimeType,
		Width:     img.Width,
		Height:    img.Height,
		Data:      bytes.Clone(img.Data),
		Pixels:    img.Pixels,
	}, nil
}
