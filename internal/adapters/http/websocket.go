package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/spf13/cast"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/core/usecases"
)

const wsPingInterval = 30 * time.Second

// wsInbound is a message from the map client.
//
//	{"type":"ready"}                                  renderer can take viewport changes
//	{"type":"not_ready"}                              renderer is reloading
//	{"type":"location","request_id":"1","lat":..,"lng":..}
//	{"type":"location_error","request_id":"1","code":"denied"}
//	{"type":"pan","lat":..,"lng":..}
//	{"type":"zoom","zoom":12}
//	{"type":"recenter"}
//	{"type":"locate","profile":"fast"}
//
// Coordinates may arrive as numbers or numeric strings.
type wsInbound struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Lat       any    `json:"lat,omitempty"`
	Lng       any    `json:"lng,omitempty"`
	Zoom      any    `json:"zoom,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Profile   string `json:"profile,omitempty"`
}

// wsOutbound is a message to the map client. Type selects which fields are set.
type wsOutbound struct {
	Type         string                `json:"type"`
	SessionID    string                `json:"session_id,omitempty"`
	RequestID    string                `json:"request_id,omitempty"`
	HighAccuracy *bool                 `json:"high_accuracy,omitempty"`
	TimeoutMs    int64                 `json:"timeout_ms,omitempty"`
	MaxAgeMs     int64                 `json:"max_cache_age_ms,omitempty"`
	Viewport     *domain.Viewport      `json:"viewport,omitempty"`
	Entities     []domain.RankedEntity `json:"entities,omitempty"`
	Region       *domain.RegionMatch   `json:"region,omitempty"`
	Outcome      string                `json:"outcome,omitempty"`
	Error        string                `json:"error,omitempty"`
}

type locationReply struct {
	point domain.GeoPoint
	err   error
}

// mapClient is the remote side of a map session. It renders the viewport,
// displays the ranked list and, when no server-side sensor exists, reports
// the consumer's position on request.
type mapClient struct {
	send   func([]byte) error
	logger *slog.Logger

	ready  atomic.Bool
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan locationReply
}

var (
	_ ports.MapRenderer    = (*mapClient)(nil)
	_ ports.ListSink       = (*mapClient)(nil)
	_ ports.LocationSensor = (*mapClient)(nil)
)

func newMapClient(send func([]byte) error, logger *slog.Logger) *mapClient {
	return &mapClient{
		send:    send,
		logger:  logger,
		pending: make(map[string]chan locationReply),
	}
}

func (m *mapClient) write(msg wsOutbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.send(data)
}

// IsReady reports whether the client announced a usable map.
func (m *mapClient) IsReady() bool { return m.ready.Load() }

// SetViewport tells the client to move its map.
func (m *mapClient) SetViewport(center domain.GeoPoint, zoom int) error {
	return m.write(wsOutbound{Type: "viewport", Viewport: &domain.Viewport{Center: center, Zoom: zoom}})
}

// PushRanked sends the ranked list.
func (m *mapClient) PushRanked(ranked []domain.RankedEntity) error {
	if ranked == nil {
		ranked = []domain.RankedEntity{}
	}
	return m.write(wsOutbound{Type: "ranked", Entities: ranked})
}

// PushRegion sends the inferred region.
func (m *mapClient) PushRegion(match domain.RegionMatch) error {
	return m.write(wsOutbound{Type: "region", Region: &match})
}

// RequestLocation asks the client for its position and waits for the reply
// or ctx.
func (m *mapClient) RequestLocation(ctx context.Context, req ports.SensorRequest) (domain.GeoPoint, error) {
	id := strconv.FormatUint(m.nextID.Add(1), 10)
	reply := make(chan locationReply, 1)

	m.mu.Lock()
	m.pending[id] = reply
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	high := req.HighAccuracy
	err := m.write(wsOutbound{
		Type:         "request_location",
		RequestID:    id,
		HighAccuracy: &high,
		TimeoutMs:    req.Timeout.Milliseconds(),
		MaxAgeMs:     req.MaxCacheAge.Milliseconds(),
	})
	if err != nil {
		return domain.GeoPoint{}, &domain.LocationError{Code: domain.LocationUnavailable, Err: err}
	}

	select {
	case <-ctx.Done():
		return domain.GeoPoint{}, ctx.Err()
	case r := <-reply:
		return r.point, r.err
	}
}

// resolve completes a pending location request. Replies for unknown or
// expired requests are dropped.
func (m *mapClient) resolve(id string, r locationReply) bool {
	m.mu.Lock()
	ch, ok := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	ch <- r
	return true
}

// mapSession drives one usecases.Session from client messages.
type mapSession struct {
	client  *mapClient
	session *usecases.Session
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func newMapSession(deps *Dependencies, send func([]byte) error, logger *slog.Logger) *mapSession {
	client := newMapClient(send, logger)

	acquirer := deps.Acquirer
	if acquirer == nil {
		acquirer = usecases.NewGeolocationAcquirer(client, deps.MapSessions.Profiles, logger)
	}

	session := usecases.NewSession(usecases.SessionDeps{
		Acquirer:  acquirer,
		Viewport:  usecases.NewViewportController(client, deps.MapSessions.Viewport, logger),
		Proximity: deps.Proximity,
		Sink:      client,
		Publisher: deps.Publisher,
		Logger:    logger,
	})

	return &mapSession{
		client:  client,
		session: session,
		logger:  logger.With("session_id", session.ID()),
	}
}

// start announces the session and runs its opening sequence.
func (s *mapSession) start(ctx context.Context) {
	_ = s.client.write(wsOutbound{Type: "session", SessionID: s.session.ID()})
	s.spawn(func() {
		if err := s.session.Start(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("session start failed", "error", err)
			_ = s.client.write(wsOutbound{Type: "error", Error: "could not rank catalog"})
		}
	})
}

// spawn runs fn off the read loop so location replies keep flowing while
// an acquisition waits for them.
func (s *mapSession) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *mapSession) wait() { s.wg.Wait() }

func (s *mapSession) handle(ctx context.Context, raw []byte) {
	var m wsInbound
	if err := json.Unmarshal(raw, &m); err != nil {
		_ = s.client.write(wsOutbound{Type: "error", Error: "invalid JSON"})
		return
	}

	switch m.Type {
	case "ready":
		s.client.ready.Store(true)

	case "not_ready":
		s.client.ready.Store(false)

	case "location":
		p, err := pointFromMessage(m)
		r := locationReply{point: p}
		if err != nil {
			r.err = &domain.LocationError{Code: domain.LocationUnavailable, Err: err}
		}
		if !s.client.resolve(m.RequestID, r) {
			s.logger.Debug("dropping late location reply", "request_id", m.RequestID)
		}

	case "location_error":
		lerr := &domain.LocationError{Code: domain.ParseLocationErrorCode(m.Code)}
		if m.Message != "" {
			lerr.Err = errors.New(m.Message)
		}
		s.client.resolve(m.RequestID, locationReply{err: lerr})

	case "pan":
		p, err := pointFromMessage(m)
		if err != nil {
			_ = s.client.write(wsOutbound{Type: "error", Error: err.Error()})
			return
		}
		s.session.UserPan(p)

	case "zoom":
		zoom, err := cast.ToIntE(m.Zoom)
		if err != nil || zoom < 0 {
			_ = s.client.write(wsOutbound{Type: "error", Error: "zoom must be a non-negative integer"})
			return
		}
		s.session.UserZoom(zoom)

	case "recenter":
		s.spawn(func() {
			outcome, err := s.session.Recenter(ctx)
			s.report("recenter", outcome, err)
		})

	case "locate":
		profile := domain.ProfileName(m.Profile)
		if profile == "" {
			profile = domain.ProfilePrecise
		}
		s.spawn(func() {
			outcome, err := s.session.Locate(ctx, profile)
			s.report("locate", outcome, err)
		})

	default:
		_ = s.client.write(wsOutbound{Type: "error", Error: "unknown message type: " + m.Type})
	}
}

func (s *mapSession) report(op string, outcome usecases.ApplyOutcome, err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn(op+" failed", "error", err)
		_ = s.client.write(wsOutbound{Type: "error", Error: err.Error()})
		return
	}
	_ = s.client.write(wsOutbound{Type: op, Outcome: outcome.String()})
}

func pointFromMessage(m wsInbound) (domain.GeoPoint, error) {
	lat, err := cast.ToFloat64E(m.Lat)
	if err != nil {
		return domain.GeoPoint{}, errors.New("lat must be a number")
	}
	lng, err := cast.ToFloat64E(m.Lng)
	if err != nil {
		return domain.GeoPoint{}, errors.New("lng must be a number")
	}
	p := domain.GeoPoint{Lat: lat, Lng: lng}
	if m.Lat == nil || m.Lng == nil || !p.Valid() {
		return domain.GeoPoint{}, errors.New("coordinate missing or out of range")
	}
	return p, nil
}

// MapSessionHandler upgrades to a WebSocket map session. The client renders
// the map and list; the server ranks the catalog and drives the viewport.
// Sessions are registered so catalog changes reach them and so
// GET /v1/sessions/:id can report their state.
func MapSessionHandler(deps *Dependencies, logger *slog.Logger) func(*websocket.Conn) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *websocket.Conn) {
		defer c.Close()

		var mu sync.Mutex
		send := func(data []byte) error {
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		ctx, cancel := context.WithCancel(context.Background())
		s := newMapSession(deps, send, logger.With("remote", c.RemoteAddr().String()))
		deps.Sessions.Add(s.session)
		s.logger.Info("map session opened")

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		s.start(ctx)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			s.handle(ctx, msg)
		}

		close(done)
		cancel()
		s.wait()
		deps.Sessions.Remove(s.session.ID())
		s.logger.Info("map session closed")
	}
}
