package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yokitheyo/imageenhancer/internal/domain"
)

func TestMapSessionHidesResultUntilReady(t *testing.T) {
	now := time.Now()
	img := &domain.UploadedImage{Filename: "a.png", MimeType: "image/png", Width: 2, Height: 2, Data: []byte("x")}

	processing, id := domain.NewSnapshot("s1", now).Ingest(img, now)
	resp := MapSessionToResponse(processing, "http://host", false)

	assert.Equal(t, "processing", resp.State)
	assert.Equal(t, "http://host/api/sessions/s1/original", resp.OriginalURL)
	assert.Empty(t, resp.Original.DataURI)
	assert.Nil(t, resp.Enhanced)
	assert.Empty(t, resp.Filter)
	assert.Empty(t, resp.PreviewURL)

	ready, _ := processing.CompleteEnhancement(id, &domain.EnhancedResult{RequestID: id, MimeType: "image/png", Width: 2, Height: 2}, now)
	resp = MapSessionToResponse(ready, "http://host", true)

	assert.Equal(t, "ready", resp.State)
	assert.Equal(t, "data:image/png;base64,eA==", resp.Original.DataURI)
	assert.Equal(t, "brightness(100%) contrast(100%) saturate(100%)", resp.Filter)
	assert.Equal(t, "http://host/api/sessions/s1/preview", resp.PreviewURL)
	assert.Equal(t, "http://host/api/sessions/s1/download", resp.DownloadURL)
}
