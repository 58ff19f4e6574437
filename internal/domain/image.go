package domain

import (
	"encoding/base64"
	"image"
)

type UploadedImage struct {
	Filename string      `json:"filename"`
	MimeType string      `json:"mime_type"`
	Format   string      `json:"format"`
	Size     int64       `json:"size"`
	Width    int         `json:"width"`
	Height   int         `json:"height"`
	Data     []byte      `json:"-"`
	Pixels   image.Image `json:"-"`
}

// DataURI returns the upload as an inline displayable URI.
func (u *UploadedImage) DataURI() string {
	if u == nil || len(u.Data) == 0 {
		return ""
	}
	return "data:" + u.MimeType + ";base64," + base64.StdEncoding.EncodeToString(u.Data)
}

// EnhancedResult is what the enhancement stage produced for one ingestion.
// RequestID ties it to the ingestion that started it.
type EnhancedResult struct {
	RequestID uint64      `json:"request_id"`
	MimeType  string      `json:"mime_type"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Data      []byte      `json:"-"`
	Pixels    image.Image `json:"-"`
}

func (r *EnhancedResult) SameShape(u *UploadedImage) bool {
	if r == nil || u == nil {
		return false
	}
	return r.Width == u.Width && r.Height == u.Height
}
