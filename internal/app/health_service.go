package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/color"
	"github.com/dokzlo13/huestrip/internal/config"
	"github.com/dokzlo13/huestrip/internal/eventbus"
	"github.com/dokzlo13/huestrip/internal/history"
)

// HealthService provides HTTP health check and status endpoints.
type HealthService struct {
	cfg     *config.Config
	strip   *StripService
	history *history.History
	now     func() time.Time
	server  *http.Server
}

// NewHealthService creates a new HealthService. history may be nil.
func NewHealthService(cfg *config.Config, strip *StripService, h *history.History) *HealthService {
	return &HealthService{
		cfg:     cfg,
		strip:   strip,
		history: h,
		now:     time.Now,
	}
}

// LightStatus is the last known state of one polled light.
type LightStatus struct {
	ID         int       `json:"id"`
	Side       string    `json:"side"`
	On         bool      `json:"on"`
	Brightness int       `json:"brightness"`
	ColorMode  string    `json:"color_mode"`
	Color      color.RGB `json:"color"`
	FetchedAt  time.Time `json:"fetched_at"`
	Stale      bool      `json:"stale"`
}

// Status is the /status response body.
type Status struct {
	Ready         bool           `json:"ready"`
	PollsOK       uint64         `json:"polls_ok"`
	PollsFailed   uint64         `json:"polls_failed"`
	LastPoll      *time.Time     `json:"last_poll,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	FramesEmitted uint64         `json:"frames_emitted"`
	Sinks         string         `json:"sinks"`
	Events        eventbus.Stats `json:"events"`
	Lights        []LightStatus  `json:"lights"`
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler returns the HTTP routes.
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Ready once a poll succeeded recently
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Status())
	})

	mux.HandleFunc("/history", s.handleHistory)

	return mux
}

// readyWindow is how old the last successful poll may be.
func (s *HealthService) readyWindow() time.Duration {
	return 3*s.cfg.Hue.PollDelay.Duration() + s.cfg.Hue.Timeout.Duration()
}

func (s *HealthService) ready() bool {
	last := s.strip.Poller.Stats().LastSuccess
	return !last.IsZero() && s.now().Sub(last) <= s.readyWindow()
}

// Status collects the current pipeline status.
func (s *HealthService) Status() Status {
	stats := s.strip.Poller.Stats()
	st := Status{
		Ready:         s.ready(),
		PollsOK:       stats.OK,
		PollsFailed:   stats.Failed,
		LastError:     stats.LastError,
		FramesEmitted: s.strip.Emitter.Emitted(),
		Sinks:         s.strip.Sinks.Name(),
		Events:        s.strip.Bus.Stats(),
		Lights:        []LightStatus{},
	}
	if !stats.LastSuccess.IsZero() {
		last := stats.LastSuccess
		st.LastPoll = &last
	}

	sides := map[int]string{
		s.cfg.Hue.LeftLight:  "left",
		s.cfg.Hue.RightLight: "right",
	}
	for id, cached := range s.strip.Cache.Snapshot() {
		st.Lights = append(st.Lights, LightStatus{
			ID:         id,
			Side:       sides[id],
			On:         cached.State.On,
			Brightness: cached.State.Brightness,
			ColorMode:  cached.State.ColorMode,
			Color:      color.ToRGB(cached.Color),
			FetchedAt:  cached.FetchedAt,
			Stale:      s.strip.Cache.IsStale(id),
		})
	}
	sort.Slice(st.Lights, func(i, j int) bool { return st.Lights[i].ID < st.Lights[j].ID })

	return st
}

func (s *HealthService) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "history is disabled"})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = min(n, 1000)
	}

	var (
		entries []*history.Entry
		err     error
	)
	if v := r.URL.Query().Get("light"); v != "" {
		light, convErr := strconv.Atoi(v)
		if convErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid light"})
			return
		}
		entries, err = s.history.ForLight(light, limit)
	} else {
		entries, err = s.history.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to query history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history query failed"})
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.GetHost(), s.cfg.Healthcheck.GetPort())

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}
