package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/core/usecases"
	"github.com/samirrijal/proxima/internal/pkg/regions"
)

type staticEntities []domain.LocatableEntity

func (s staticEntities) List(ctx context.Context) ([]domain.LocatableEntity, error) {
	return s, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type wsRecorder struct {
	msgs chan wsOutbound
}

func newRecorder() *wsRecorder {
	return &wsRecorder{msgs: make(chan wsOutbound, 64)}
}

func (r *wsRecorder) send(data []byte) error {
	var m wsOutbound
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.msgs <- m
	return nil
}

func (r *wsRecorder) next(t *testing.T) wsOutbound {
	t.Helper()
	select {
	case m := <-r.msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a client message")
		return wsOutbound{}
	}
}

func wsTestDeps() *Dependencies {
	table := regions.New([]regions.Entry{
		{Name: "South Africa", Lat: -30.5595, Lng: 22.9375},
		{Name: "Kenya", Lat: -0.0236, Lng: 37.9062},
	})
	repo := staticEntities{
		{ID: "kenya", RegionName: "Kenya", IsOnline: true},
		{ID: "cape-town", ExactLocation: &domain.RawPoint{Lat: "-33.92", Lng: 18.42}},
		{ID: "nowhere"},
	}
	catalog := usecases.NewCatalogService(repo, usecases.NewLocationResolver(table), nil)

	viewport := usecases.DefaultViewportConfig()
	viewport.ApplyInitialInterval = time.Millisecond
	viewport.ApplyMaxInterval = 5 * time.Millisecond

	return &Dependencies{
		Proximity:   usecases.NewProximityService(catalog, table, nil, nil, nil),
		Regions:     table,
		Sessions:    usecases.NewSessionRegistry(nil),
		MapSessions: MapSessionConfig{Viewport: viewport},
	}
}

func message(t *testing.T, v map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestMapSession_ClientLocatedFlow(t *testing.T) {
	rec := newRecorder()
	s := newMapSession(wsTestDeps(), rec.send, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.wait()
	}()

	s.handle(ctx, []byte(`{"type":"ready"}`))
	s.start(ctx)

	first := rec.next(t)
	require.Equal(t, "session", first.Type)
	assert.Equal(t, s.session.ID(), first.SessionID)

	var (
		ranked   []domain.RankedEntity
		region   *domain.RegionMatch
		viewport *domain.Viewport
		requests int
	)
	for viewport == nil || region == nil {
		m := rec.next(t)
		switch m.Type {
		case "request_location":
			requests++
			require.NotNil(t, m.HighAccuracy)
			// Coordinates as strings are accepted.
			s.handle(ctx, message(t, map[string]any{
				"type": "location", "request_id": m.RequestID, "lat": "-33.9", "lng": 18.4,
			}))
		case "ranked":
			ranked = m.Entities
		case "region":
			region = m.Region
		case "viewport":
			viewport = m.Viewport
		}
	}

	assert.Equal(t, 2, requests, "fast and precise profiles each ask once")
	assert.Equal(t, "South Africa", region.Name)
	require.Len(t, ranked, 3)
	assert.Equal(t, "cape-town", ranked[0].ID)
	assert.Equal(t, domain.GeoPoint{Lat: -33.9, Lng: 18.4}, viewport.Center)
	assert.Equal(t, usecases.DefaultViewportConfig().ZoomMedium, viewport.Zoom)

	snap := s.session.Snapshot()
	require.NotNil(t, snap.Consumer)
	assert.Equal(t, domain.ViewportCentered, snap.Viewport.Phase)
}

func TestMapClient_LocationError(t *testing.T) {
	rec := newRecorder()
	s := newMapSession(wsTestDeps(), rec.send, discardLogger())

	errc := make(chan error, 1)
	go func() {
		_, err := s.client.RequestLocation(context.Background(), ports.SensorRequest{HighAccuracy: true})
		errc <- err
	}()

	req := rec.next(t)
	require.Equal(t, "request_location", req.Type)
	require.NotNil(t, req.HighAccuracy)
	assert.True(t, *req.HighAccuracy)

	s.handle(context.Background(), message(t, map[string]any{
		"type": "location_error", "request_id": req.RequestID, "code": "permission_denied",
	}))

	err := <-errc
	assert.True(t, errors.Is(err, domain.ErrLocationDenied))
}

func TestMapClient_InvalidLocationReply(t *testing.T) {
	rec := newRecorder()
	s := newMapSession(wsTestDeps(), rec.send, discardLogger())

	errc := make(chan error, 1)
	go func() {
		_, err := s.client.RequestLocation(context.Background(), ports.SensorRequest{})
		errc <- err
	}()

	req := rec.next(t)
	s.handle(context.Background(), message(t, map[string]any{
		"type": "location", "request_id": req.RequestID, "lat": 123.0, "lng": 0,
	}))

	assert.True(t, errors.Is(<-errc, domain.ErrLocationUnavailable))
}

func TestMapClient_CancelledRequest(t *testing.T) {
	rec := newRecorder()
	client := newMapClient(rec.send, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := client.RequestLocation(ctx, ports.SensorRequest{})
		errc <- err
	}()

	req := rec.next(t)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	// A reply after cancellation has nowhere to go.
	assert.False(t, client.resolve(req.RequestID, locationReply{}))
}

func TestMapClient_Readiness(t *testing.T) {
	s := newMapSession(wsTestDeps(), newRecorder().send, discardLogger())
	ctx := context.Background()

	assert.False(t, s.client.IsReady())
	s.handle(ctx, []byte(`{"type":"ready"}`))
	assert.True(t, s.client.IsReady())
	s.handle(ctx, []byte(`{"type":"not_ready"}`))
	assert.False(t, s.client.IsReady())
}

func TestMapSession_UserGestures(t *testing.T) {
	rec := newRecorder()
	s := newMapSession(wsTestDeps(), rec.send, discardLogger())
	ctx := context.Background()

	s.handle(ctx, []byte(`{"type":"pan","lat":-26.2,"lng":28.04}`))
	s.handle(ctx, []byte(`{"type":"zoom","zoom":"12"}`))

	st := s.session.Snapshot().Viewport
	assert.True(t, st.UserIsInteracting)
	assert.Equal(t, domain.GeoPoint{Lat: -26.2, Lng: 28.04}, st.Center)
	assert.Equal(t, 12, st.Zoom)
}

func TestMapSession_RejectsBadMessages(t *testing.T) {
	rec := newRecorder()
	s := newMapSession(wsTestDeps(), rec.send, discardLogger())
	ctx := context.Background()

	for _, raw := range []string{
		`not json`,
		`{"type":"teleport"}`,
		`{"type":"pan","lat":95,"lng":0}`,
		`{"type":"zoom","zoom":-1}`,
	} {
		s.handle(ctx, []byte(raw))
		m := rec.next(t)
		assert.Equal(t, "error", m.Type, raw)
		assert.NotEmpty(t, m.Error, raw)
	}
	assert.False(t, s.session.Snapshot().Viewport.UserIsInteracting)
}

func TestMapSession_UnknownProfileReported(t *testing.T) {
	rec := newRecorder()
	s := newMapSession(wsTestDeps(), rec.send, discardLogger())

	s.handle(context.Background(), []byte(`{"type":"locate","profile":"sloppy"}`))
	s.wait()

	m := rec.next(t)
	assert.Equal(t, "error", m.Type)
	assert.Contains(t, m.Error, usecases.ErrUnknownProfile.Error())
}
