package dto

import (
	"time"

	"github.com/yokitheyo/imageenhancer/internal/domain"
)

type ImageInfo struct {
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	DataURI  string `json:"data_uri,omitempty"`
}

type SessionResponse struct {
	ID        string                    `json:"id"`
	State     string                    `json:"state"`
	RequestID uint64                    `json:"request_id"`
	Settings  domain.AdjustmentSettings `json:"settings"`
	Filter    string                    `json:"filter,omitempty"`
	Notice    string                    `json:"notice,omitempty"`
	Original  *ImageInfo                `json:"original,omitempty"`
	Enhanced  *ImageInfo                `json:"enhanced,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`

	// URLs
	OriginalURL string `json:"original_url,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// MapSessionToResponse exposes only what may be shown in the snapshot's
// state: the enhanced result, filter and result URLs appear once Ready.
func MapSessionToResponse(s domain.Snapshot, baseURL string, embed bool) *SessionResponse {
	resp := &SessionResponse{
		ID:        s.ID,
		State:     string(s.State),
		RequestID: s.RequestID,
		Settings:  s.Settings,
		Notice:    s.Notice,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}

	prefix := baseURL + "/api/sessions/" + s.ID
	if s.Uploaded != nil {
		resp.Original = &ImageInfo{
			Filename: s.Uploaded.Filename,
			MimeType: s.Uploaded.MimeType,
			Size:     s.Uploaded.Size,
			Width:    s.Uploaded.Width,
			Height:   s.Uploaded.Height,
		}
		if embed {
			resp.Original.DataURI = s.Uploaded.DataURI()
		}
		resp.OriginalURL = prefix + "/original"
	}

	if s.Displayable() {
		resp.Enhanced = &ImageInfo{
			MimeType: s.Enhanced.MimeType,
			Width:    s.Enhanced.Width,
			Height:   s.Enhanced.Height,
		}
		resp.Filter = s.Settings.CSSFilter()
		resp.PreviewURL = prefix + "/preview"
		resp.DownloadURL = prefix + "/download"
	}

	return resp
}
