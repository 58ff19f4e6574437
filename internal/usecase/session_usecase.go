package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/domain"
	"github.com/yokitheyo/imageenhancer/internal/helpers"
)

type pendingEnhancement struct {
	requestID uint64
	cancel    context.CancelFunc
}

type SessionUsecase struct {
	repo     domain.SessionRepository
	decoder  domain.Decoder
	enhancer domain.Enhancer
	renderer domain.Renderer
	events   domain.EventPublisher
	ttl      time.Duration
	now      func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]pendingEnhancement
}

var _ domain.SessionService = (*SessionUsecase)(nil)

func NewSessionUsecase(
	repo domain.SessionRepository,
	decoder domain.Decoder,
	enhancer domain.Enhancer,
	renderer domain.Renderer,
	events domain.EventPublisher,
	ttl time.Duration,
) *SessionUsecase {
	baseCtx, stop := context.WithCancel(context.Background())
	return &SessionUsecase{
		repo:     repo,
		decoder:  decoder,
		enhancer: enhancer,
		renderer: renderer,
		events:   events,
		ttl:      ttl,
		now:      time.Now,
		baseCtx:  baseCtx,
		stop:     stop,
		pending:  make(map[string]pendingEnhancement),
	}
}

func (u *SessionUsecase) CreateSession(ctx context.Context) (domain.Snapshot, error) {
	now := u.now()
	snapshot := domain.NewSnapshot(uuid.New().String(), now)
	if err := u.repo.Create(ctx, snapshot); err != nil {
		zlog.Logger.Error().Err(err).Str("session_id", snapshot.ID).Msg("failed to create session")
		return domain.Snapshot{}, fmt.Errorf("create session: %w", err)
	}

	zlog.Logger.Info().Str("session_id", snapshot.ID).Msg("session created")
	u.publish(ctx, domain.NewSessionEvent(domain.EventSessionCreated, snapshot, now))
	return snapshot, nil
}

func (u *SessionUsecase) GetSession(ctx context.Context, id string) (domain.Snapshot, error) {
	return u.repo.Get(ctx, id)
}

// IngestFile decodes a selected file and starts a new upload cycle. When the
// file is rejected the session is returned unchanged together with the
// *domain.IngestionError.
func (u *SessionUsecase) IngestFile(ctx context.Context, id, filename, declaredMime string, data []byte) (domain.Snapshot, error) {
	current, err := u.repo.Get(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}

	img, err := u.decoder.Decode(ctx, filename, declaredMime, data)
	if err != nil {
		zlog.Logger.Warn().
			Err(err).
			Str("session_id", id).
			Str("filename", filename).
			Str("state", string(current.State)).
			Msg("ingestion rejected")
		return current, err
	}

	var requestID uint64
	snapshot, err := u.repo.Update(ctx, id, func(cur domain.Snapshot) (domain.Snapshot, error) {
		next, reqID := cur.Ingest(img, u.now())
		requestID = reqID
		return next, nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	zlog.Logger.Info().
		Str("session_id", id).
		Uint64("request_id", requestID).
		Str("filename", filename).
		Str("mime", img.MimeType).
		Int("width", img.Width).
		Int("height", img.Height).
		Msg("image ingested, enhancement started")
	u.publish(ctx, domain.NewSessionEvent(domain.EventImageIngested, snapshot, u.now()))

	u.startEnhancement(id, requestID, img)
	return snapshot, nil
}

func (u *SessionUsecase) startEnhancement(sessionID string, requestID uint64, img *domain.UploadedImage) {
	ctx, cancel := context.WithCancel(u.baseCtx)

	u.mu.Lock()
	if prev, ok := u.pending[sessionID]; ok {
		if prev.requestID > requestID {
			u.mu.Unlock()
			cancel()
			return
		}
		prev.cancel()
	}
	u.pending[sessionID] = pendingEnhancement{requestID: requestID, cancel: cancel}
	u.wg.Add(1)
	u.mu.Unlock()

	go func() {
		defer u.wg.Done()
		defer u.clearPending(sessionID, requestID)

		result, err := u.enhancer.Enhance(ctx, requestID, img)
		if err != nil {
			u.EnhancementFailed(context.Background(), sessionID, requestID, err)
			return
		}
		u.EnhancementCompleted(context.Background(), sessionID, requestID, result)
	}()
}

func (u *SessionUsecase) clearPending(sessionID string, requestID uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if p, ok := u.pending[sessionID]; ok && p.requestID == requestID {
		p.cancel()
		delete(u.pending, sessionID)
	}
}

func (u *SessionUsecase) cancelPending(sessionID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if p, ok := u.pending[sessionID]; ok {
		p.cancel()
		delete(u.pending, sessionID)
	}
}

// EnhancementCompleted applies a finished enhancement. It reports applied=false
// when requestID is no longer the session's latest ingestion.
func (u *SessionUsecase) EnhancementCompleted(ctx context.Context, sessionID string, requestID uint64, result *domain.EnhancedResult) (domain.Snapshot, bool, error) {
	var applied bool
	snapshot, err := u.repo.Update(ctx, sessionID, func(cur domain.Snapshot) (domain.Snapshot, error) {
		next, ok := cur.CompleteEnhancement(requestID, result, u.now())
		applied = ok
		return next, nil
	})
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("session_id", sessionID).Uint64("request_id", requestID).Msg("enhancement finished for unknown session")
		return domain.Snapshot{}, false, err
	}

	if !applied {
		u.discarded(ctx, snapshot, requestID, nil)
		return snapshot, false, nil
	}

	zlog.Logger.Info().
		Str("session_id", sessionID).
		Uint64("request_id", requestID).
		Int("width", result.Width).
		Int("height", result.Height).
		Msg("enhancement completed, session ready")
	u.publish(ctx, domain.NewSessionEvent(domain.EventEnhancementCompleted, snapshot, u.now()))
	return snapshot, true, nil
}

// EnhancementFailed moves the session back to a recoverable state, unless the
// failure belongs to a superseded ingestion.
func (u *SessionUsecase) EnhancementFailed(ctx context.Context, sessionID string, requestID uint64, cause error) (domain.Snapshot, bool, error) {
	var applied bool
	snapshot, err := u.repo.Update(ctx, sessionID, func(cur domain.Snapshot) (domain.Snapshot, error) {
		next, ok := cur.FailEnhancement(requestID, cause, u.now())
		applied = ok
		return next, nil
	})
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("session_id", sessionID).Uint64("request_id", requestID).Msg("enhancement failed for unknown session")
		return domain.Snapshot{}, false, err
	}

	if !applied {
		u.discarded(ctx, snapshot, requestID, cause)
		return snapshot, false, nil
	}

	zlog.Logger.Error().
		Err(cause).
		Str("session_id", sessionID).
		Uint64("request_id", requestID).
		Str("state", string(snapshot.State)).
		Msg("enhancement failed")
	evt := domain.NewSessionEvent(domain.EventEnhancementFailed, snapshot, u.now())
	evt.RequestID = requestID
	evt.Error = cause.Error()
	u.publish(ctx, evt)
	return snapshot, true, nil
}

func (u *SessionUsecase) discarded(ctx context.Context, snapshot domain.Snapshot, requestID uint64, cause error) {
	l := zlog.Logger.Warn().
		Str("session_id", snapshot.ID).
		Uint64("request_id", requestID).
		Uint64("latest_request_id", snapshot.RequestID).
		Str("state", string(snapshot.State))
	if cause != nil {
		l = l.Err(cause)
	}
	l.Msg("stale enhancement discarded")

	evt := domain.NewSessionEvent(domain.EventEnhancementDiscarded, snapshot, u.now())
	evt.RequestID = requestID
	u.publish(ctx, evt)
}

func (u *SessionUsecase) SetAdjustment(ctx context.Context, id string, ch domain.Channel, value int) (domain.Snapshot, error) {
	snapshot, err := u.repo.Update(ctx, id, func(cur domain.Snapshot) (domain.Snapshot, error) {
		return cur.SetAdjustment(ch, value, u.now())
	})
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			zlog.Logger.Warn().
				Err(err).
				Str("session_id", id).
				Str("channel", string(ch)).
				Int("value", value).
				Msg("adjustment rejected")
		}
		return snapshot, err
	}

	zlog.Logger.Debug().
		Str("session_id", id).
		Str("channel", string(ch)).
		Int("value", value).
		Str("filter", snapshot.Settings.CSSFilter()).
		Msg("adjustment applied")
	evt := domain.NewSessionEvent(domain.EventAdjustmentChanged, snapshot, u.now())
	settings := snapshot.Settings
	evt.Settings = &settings
	u.publish(ctx, evt)
	return snapshot, nil
}

func (u *SessionUsecase) Original(ctx context.Context, id string) (*domain.UploadedImage, error) {
	snapshot, err := u.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snapshot.Uploaded == nil {
		return nil, fmt.Errorf("%w: nothing uploaded", domain.ErrNotReady)
	}
	return snapshot.Uploaded, nil
}

func (u *SessionUsecase) displayable(ctx context.Context, id string) (domain.Snapshot, error) {
	snapshot, err := u.repo.Get(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !snapshot.Displayable() {
		return snapshot, fmt.Errorf("%w: state is %s", domain.ErrNotReady, snapshot.State)
	}
	return snapshot, nil
}

// Preview writes the filtered result, scaled for display, as PNG.
func (u *SessionUsecase) Preview(ctx context.Context, id string, w io.Writer) (domain.ExportInfo, error) {
	snapshot, err := u.displayable(ctx, id)
	if err != nil {
		return domain.ExportInfo{}, err
	}

	out := u.renderer.Preview(snapshot.Enhanced.Pixels, snapshot.Settings)
	if err := imaging.Encode(w, out, imaging.PNG); err != nil {
		zlog.Logger.Error().Err(err).Str("session_id", id).Msg("failed to encode preview")
		return domain.ExportInfo{}, fmt.Errorf("encode preview: %w", err)
	}
	return domain.ExportInfo{
		MimeType:  "image/png",
		Extension: ".png",
		Width:     out.Bounds().Dx(),
		Height:    out.Bounds().Dy(),
	}, nil
}

// Export writes the full-size result with the current adjustments baked into
// the pixels and returns the suggested download filename.
func (u *SessionUsecase) Export(ctx context.Context, id string, w io.Writer) (domain.ExportInfo, string, error) {
	snapshot, err := u.displayable(ctx, id)
	if err != nil {
		return domain.ExportInfo{}, "", err
	}

	info, err := u.renderer.Export(w, snapshot.Enhanced.Pixels, snapshot.Settings)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("session_id", id).Msg("failed to export image")
		return domain.ExportInfo{}, "", err
	}

	filename := ExportFilename(snapshot.Uploaded, info.Extension)
	zlog.Logger.Info().
		Str("session_id", id).
		Uint64("request_id", snapshot.RequestID).
		Str("filename", filename).
		Str("filter", snapshot.Settings.CSSFilter()).
		Msg("image exported")

	evt := domain.NewSessionEvent(domain.EventImageExported, snapshot, u.now())
	settings := snapshot.Settings
	evt.Settings = &settings
	u.publish(ctx, evt)
	return info, filename, nil
}

// ExportFilename names a download after the uploaded file.
func ExportFilename(img *domain.UploadedImage, ext string) string {
	base := "image"
	if img != nil {
		base = helpers.FileStem(img.Filename, base)
	}
	return base + "_enhanced" + ext
}

// SweepExpired drops sessions idle for longer than the configured TTL and
// cancels their pending enhancements.
func (u *SessionUsecase) SweepExpired(ctx context.Context) (int, error) {
	removed, err := u.repo.DeleteIdleSince(ctx, u.now().Add(-u.ttl))
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to sweep idle sessions")
		return 0, err
	}
	for _, id := range removed {
		u.cancelPending(id)
	}
	return len(removed), nil
}

// Shutdown cancels every in-flight enhancement and waits for the goroutines
// to finish.
func (u *SessionUsecase) Shutdown() {
	u.stop()
	u.wg.Wait()
	zlog.Logger.Info().Msg("session usecase stopped")
}

func (u *SessionUsecase) publish(ctx context.Context, evt domain.SessionEvent) {
	if u.events == nil {
		return
	}
	if err := u.events.Publish(ctx, evt); err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("session_id", evt.SessionID).
			Str("event", string(evt.Type)).
			Msg("failed to publish session event")
	}
}
