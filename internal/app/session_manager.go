// Package app wires transport call legs to responder sessions: one
// responder, detector, and pipeline per active call.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/parlavox/parlavox/internal/config"
	"github.com/parlavox/parlavox/internal/observe"
	"github.com/parlavox/parlavox/internal/responder"
	"github.com/parlavox/parlavox/pkg/transport"
	"github.com/parlavox/parlavox/pkg/tts"
	"github.com/parlavox/parlavox/pkg/vad/energy"
)

// errCallEnded signals the normal end of a call (caller hung up).
var errCallEnded = errors.New("app: call ended")

// SessionInfo holds metadata about an active call session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the call was answered.
	StartedAt time.Time
}

// session is one live call.
type session struct {
	info   SessionInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// SessionManager creates and tracks responder sessions, one per call leg.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	cfg  *config.Config
	ttsP tts.Provider
	met  *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg *config.Config, ttsP tts.Provider) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		ttsP:     ttsP,
		met:      observe.Default(),
		sessions: make(map[string]*session),
	}
}

// HandleCall runs one call session to completion: it builds the
// per-session pipeline, plays the configured greeting, pumps uplink audio
// into the responder and responder frames back to the bridge, and tears
// everything down when the caller hangs up or the manager shuts down.
//
// HandleCall blocks for the lifetime of the call and always closes bridge.
// It is intended to be used as the transport handler's OnCall callback.
func (m *SessionManager) HandleCall(bridge transport.Bridge) {
	defer bridge.Close()

	id := uuid.NewString()
	log := slog.With("session_id", id)

	sess, ctx, err := m.register(id)
	if err != nil {
		log.Warn("rejecting call", "err", err)
		return
	}
	defer m.unregister(id)
	defer close(sess.done)

	m.met.ActiveSessions.Add(ctx, 1)
	defer m.met.ActiveSessions.Add(context.Background(), -1)

	resp, err := m.newResponder()
	if err != nil {
		log.Error("failed to build responder", "err", err)
		return
	}
	if err := resp.Start(); err != nil {
		log.Error("failed to start responder", "err", err)
		return
	}
	defer resp.Stop()

	log.Info("call answered")

	g, ctx := errgroup.WithContext(ctx)

	// Uplink: caller audio → VAD gate. Ends the session when the caller
	// hangs up.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case pcm, ok := <-bridge.Uplink():
				if !ok {
					return errCallEnded
				}
				resp.OnUplinkFrame(pcm)
			}
		}
	})

	// Downlink: one frame per tick → wire.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case f, ok := <-resp.Frames():
				if !ok {
					return nil
				}
				if err := bridge.SendFrame(f); err != nil {
					return fmt.Errorf("app: downlink: %w", err)
				}
			}
		}
	})

	// Greeting script. A failed or cancelled greeting is not fatal to the
	// call; the line simply stays silent.
	if text := m.cfg.Greeting.Text; text != "" {
		g.Go(func() error {
			if err := resp.PlayScript(ctx, text, m.cfg.TTS.SpeakerID, m.cfg.Greeting.Speed); err != nil &&
				!errors.Is(err, context.Canceled) {
				log.Warn("greeting playback failed", "err", err)
			}
			return nil
		})
	}

	err = g.Wait()
	switch {
	case errors.Is(err, errCallEnded), errors.Is(err, context.Canceled), err == nil:
		log.Info("call ended")
	default:
		log.Warn("call ended with error", "err", err)
	}
}

// ActiveSessions returns a snapshot of all live sessions.
func (m *SessionManager) ActiveSessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info)
	}
	return out
}

// Shutdown cancels all live sessions and waits for them to finish or for
// ctx to expire. The manager accepts no further calls afterwards.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	waiting := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		s.cancel()
		waiting = append(waiting, s)
	}
	m.mu.Unlock()

	for _, s := range waiting {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// newResponder assembles a responder and its detector from configuration.
func (m *SessionManager) newResponder() (*responder.Responder, error) {
	profile := m.cfg.Media.Profile()

	det, err := energy.New(m.cfg.VAD.DetectorConfig(profile.SampleRate, profile.PtimeMs))
	if err != nil {
		return nil, err
	}

	return responder.New(responder.Config{
		Profile:     profile,
		Detector:    det,
		TTS:         m.ttsP,
		Playout:     m.cfg.Playout.SchedulerConfig(),
		VADDebounce: m.cfg.VAD.Debounce(),
		Metrics:     m.met,
	})
}

// register records a new session and returns its cancellation context.
func (m *SessionManager) register(id string) (*session, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, errors.New("app: session manager is shut down")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		info:   SessionInfo{SessionID: id, StartedAt: time.Now()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.sessions[id] = s
	return s, ctx, nil
}

// unregister removes a finished session.
func (m *SessionManager) unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
