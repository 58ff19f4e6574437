package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/config"
	"github.com/yokitheyo/imageenhancer/internal/domain"
	"github.com/yokitheyo/imageenhancer/internal/infrastructure/decoder"
	"github.com/yokitheyo/imageenhancer/internal/infrastructure/processor"
	"github.com/yokitheyo/imageenhancer/internal/repository/memory"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

// gatedEnhancer resolves each request only when the test releases it, in
// whatever order the test chooses.
type gatedEnhancer struct {
	mu    sync.Mutex
	gates map[uint64]chan error
}

func newGatedEnhancer() *gatedEnhancer {
	return &gatedEnhancer{gates: make(map[uint64]chan error)}
}

func (e *gatedEnhancer) gate(id uint64) chan error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.gates[id]
	if !ok {
		g = make(chan error, 1)
		e.gates[id] = g
	}
	return g
}

func (e *gatedEnhancer) release(id uint64, err error) {
	e.gate(id) <- err
}

func (e *gatedEnhancer) Enhance(ctx context.Context, requestID uint64, img *domain.UploadedImage) (*domain.EnhancedResult, error) {
	if err := <-e.gate(requestID); err != nil {
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

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, evt domain.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(t domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func pngBytes(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

type fixture struct {
	uc     *SessionUsecase
	events *recordingPublisher
}

func newFixture(t *testing.T, enhancer domain.Enhancer) *fixture {
	t.Helper()
	dec := decoder.NewImageDecoder(&config.IngestionConfig{MaxUploadSizeMB: 1, SupportedFormats: []string{"png", "jpeg"}})
	proc, err := processor.NewImageProcessor(&config.PreviewConfig{MaxWidth: 100, MaxHeight: 100}, &config.ExportConfig{Format: "png", Quality: 90})
	require.NoError(t, err)

	events := &recordingPublisher{}
	uc := NewSessionUsecase(memory.NewSessionRepository(), dec, enhancer, proc, events, time.Hour)
	t.Cleanup(uc.Shutdown)
	return &fixture{uc: uc, events: events}
}

func (f *fixture) waitState(t *testing.T, id string, state domain.ProcessingState) domain.Snapshot {
	t.Helper()
	var s domain.Snapshot
	require.Eventually(t, func() bool {
		var err error
		s, err = f.uc.GetSession(context.Background(), id)
		return err == nil && s.State == state
	}, waitFor, tick)
	return s
}

func (f *fixture) readySession(t *testing.T, gate *gatedEnhancer, data []byte) domain.Snapshot {
	t.Helper()
	ctx := context.Background()
	s, err := f.uc.CreateSession(ctx)
	require.NoError(t, err)
	s, err = f.uc.IngestFile(ctx, s.ID, "photo.png", "image/png", data)
	require.NoError(t, err)
	gate.release(s.RequestID, nil)
	return f.waitState(t, s.ID, domain.StateReady)
}

var (
	red  = color.NRGBA{R: 200, G: 40, B: 40, A: 255}
	blue = color.NRGBA{R: 30, G: 60, B: 210, A: 255}
)

func TestIngestProcessingThenReady(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEnhancer()
	f := newFixture(t, gate)
	data := pngBytes(t, red)

	s, err := f.uc.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, s.State)

	s, err = f.uc.IngestFile(ctx, s.ID, "photo.png", "image/png", data)
	require.NoError(t, err)
	assert.Equal(t, domain.StateProcessing, s.State)
	assert.Equal(t, uint64(1), s.RequestID)

	// nothing moves until the enhancement resolves
	time.Sleep(20 * time.Millisecond)
	cur, err := f.uc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateProcessing, cur.State)
	assert.False(t, cur.Displayable())

	gate.release(1, nil)
	ready := f.waitState(t, s.ID, domain.StateReady)

	assert.Equal(t, data, ready.Enhanced.Data)
	assert.Equal(t, domain.DefaultAdjustments(), ready.Settings)
	assert.Equal(t, 1, f.events.count(domain.EventSessionCreated))
	assert.Equal(t, 1, f.events.count(domain.EventImageIngested))
	assert.Eventually(t, func() bool { return f.events.count(domain.EventEnhancementCompleted) == 1 }, waitFor, tick)
}

func TestLatestIngestionWins(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEnhancer()
	f := newFixture(t, gate)
	dataA, dataB := pngBytes(t, red), pngBytes(t, blue)

	s, err := f.uc.CreateSession(ctx)
	require.NoError(t, err)
	a, err := f.uc.IngestFile(ctx, s.ID, "a.png", "image/png", dataA)
	require.NoError(t, err)
	b, err := f.uc.IngestFile(ctx, s.ID, "b.png", "image/png", dataB)
	require.NoError(t, err)
	require.Greater(t, b.RequestID, a.RequestID)

	gate.release(b.RequestID, nil)
	ready := f.waitState(t, s.ID, domain.StateReady)
	assert.Equal(t, dataB, ready.Enhanced.Data)

	// A resolves late and must be dropped
	gate.release(a.RequestID, nil)
	require.Eventually(t, func() bool { return f.events.count(domain.EventEnhancementDiscarded) == 1 }, waitFor, tick)

	final, err := f.uc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, final.State)
	assert.Equal(t, dataB, final.Enhanced.Data)
	assert.Equal(t, "b.png", final.Uploaded.Filename)
}

func TestLatestIngestionWinsWithStub(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, processor.NewStubEnhancer(30*time.Millisecond))
	dataA, dataB := pngBytes(t, red), pngBytes(t, blue)

	s, err := f.uc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.uc.IngestFile(ctx, s.ID, "a.png", "image/png", dataA)
	require.NoError(t, err)
	_, err = f.uc.IngestFile(ctx, s.ID, "b.png", "image/png", dataB)
	require.NoError(t, err)

	ready := f.waitState(t, s.ID, domain.StateReady)
	assert.Equal(t, dataB, ready.Enhanced.Data)
	assert.Equal(t, uint64(2), ready.RequestID)
	assert.Empty(t, ready.Notice, "the superseded request must not surface as a failure")
}

func TestRejectedIngestionKeepsState(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEnhancer()
	f := newFixture(t, gate)

	idle, err := f.uc.CreateSession(ctx)
	require.NoError(t, err)
	got, err := f.uc.IngestFile(ctx, idle.ID, "notes.txt", "text/plain", []byte("hello"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Equal(t, domain.StateIdle, got.State)

	ready := f.readySession(t, gate, pngBytes(t, red))
	_, err = f.uc.IngestFile(ctx, ready.ID, "empty.png", "image/png", nil)
	var ie *domain.IngestionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, domain.IngestionUnreadableFile, ie.Kind)

	after, err := f.uc.GetSession(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, after.State)
	assert.Equal(t, ready.RequestID, after.RequestID)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGatedEnhancer())

	_, err := f.uc.IngestFile(ctx, "nope", "a.png", "image/png", pngBytes(t, red))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.uc.SetAdjustment(ctx, "nope", domain.ChannelBrightness, 10)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.uc.Original(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAdjustmentsRequireReady(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEnhancer()
	f := newFixture(t, gate)

	s, err := f.uc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.uc.SetAdjustment(ctx, s.ID, domain.ChannelBrightness, 120)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	_, err = f.uc.Preview(ctx, s.ID, &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrNotReady)

	_, err = f.uc.IngestFile(ctx, s.ID, "a.png", "image/png", pngBytes(t, red))
	require.NoError(t, err)
	_, _, err = f.uc.Export(ctx, s.ID, &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrNotReady)
	gate.release(1, nil)
}

func TestPreviewAndExportHonorSettings(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEnhancer()
	f := newFixture(t, gate)
	ready := f.readySession(t, gate, pngBytes(t, red))

	var identity bytes.Buffer
	_, err := f.uc.Preview(ctx, ready.ID, &identity)
	require.NoError(t, err)
	decoded, err := imaging.Decode(&identity)
	require.NoError(t, err)
	assert.Equal(t, imaging.Clone(ready.Enhanced.Pixels).Pix, imaging.Clone(decoded).Pix)

	s, err := f.uc.SetAdjustment(ctx, ready.ID, domain.ChannelBrightness, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Settings.Brightness)
	assert.Equal(t, 100, s.Settings.Contrast)
	assert.Equal(t, 100, s.Settings.Saturation)

	var out bytes.Buffer
	info, filename, err := f.uc.Export(ctx, ready.ID, &out)
	require.NoError(t, err)
	assert.Equal(t, "photo_enhanced.png", filename)
	assert.Equal(t, 4, info.Width)
	assert.Equal(t, 3, info.Height)

	exported, err := imaging.Decode(&out)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{A: 255}, imaging.Clone(exported).NRGBAAt(1, 1))
	assert.Equal(t, 1, f.events.count(domain.EventImageExported))
}

func TestReingestResetsSettings(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEnhancer()
	f := newFixture(t, gate)
	ready := f.readySession(t, gate, pngBytes(t, red))

	_, err := f.uc.SetAdjustment(ctx, ready.ID, domain.ChannelSaturation, 200)
	require.NoError(t, err)

	s, err := f.uc.IngestFile(ctx, ready.ID, "b.png", "image/png", pngBytes(t, blue))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAdjustments(), s.Settings)

	gate.release(s.RequestID, nil)
	again := f.waitState(t, ready.ID, domain.StateReady)
	assert.Equal(t, domain.DefaultAdjustments(), again.Settings)
}

func TestEnhancementFailureRestoresPreviousResult(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEnhancer()
	f := newFixture(t, gate)
	first := f.readySession(t, gate, pngBytes(t, red))

	s, err := f.uc.IngestFile(ctx, first.ID, "b.png", "image/png", pngBytes(t, blue))
	require.NoError(t, err)
	gate.release(s.RequestID, errors.New("model unavailable"))

	require.Eventually(t, func() bool { return f.events.count(domain.EventEnhancementFailed) == 1 }, waitFor, tick)
	after, err := f.uc.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, after.State)
	assert.Equal(t, first.Enhanced.Data, after.Enhanced.Data)
	assert.Contains(t, after.Notice, "model unavailable")
}

func TestEnhancementFailureWithoutPreviousGoesIdle(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEnhancer()
	f := newFixture(t, gate)

	s, err := f.uc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.uc.IngestFile(ctx, s.ID, "a.png", "image/png", pngBytes(t, red))
	require.NoError(t, err)
	gate.release(1, errors.New("boom"))

	require.Eventually(t, func() bool { return f.events.count(domain.EventEnhancementFailed) == 1 }, waitFor, tick)
	after := f.waitState(t, s.ID, domain.StateIdle)
	assert.NotEmpty(t, after.Notice)
	_, err = f.uc.Original(ctx, s.ID)
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGatedEnhancer())

	clock := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	f.uc.now = func() time.Time { return clock }

	old, err := f.uc.CreateSession(ctx)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	fresh, err := f.uc.CreateSession(ctx)
	require.NoError(t, err)

	n, err := f.uc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.uc.GetSession(ctx, old.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.uc.GetSession(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "holiday_enhanced.jpg", ExportFilename(&domain.UploadedImage{Filename: "dir/holiday.png"}, ".jpg"))
	assert.Equal(t, "image_enhanced.png", ExportFilename(&domain.UploadedImage{}, ".png"))
	assert.Equal(t, "image_enhanced.png", ExportFilename(nil, ".png"))
}
