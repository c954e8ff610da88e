// Package server provides the HTTP API and the calibration change feed
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/vision-correct/internal/config"
	"github.com/menta2k/vision-correct/internal/metrics"
	"github.com/menta2k/vision-correct/pkg/analyzer"
	"github.com/menta2k/vision-correct/pkg/calibration"
	"github.com/menta2k/vision-correct/pkg/correction"
	"github.com/menta2k/vision-correct/pkg/device"
	"github.com/menta2k/vision-correct/pkg/processing"
	"github.com/menta2k/vision-correct/pkg/scale"
	"github.com/menta2k/vision-correct/pkg/types"
)

// writeTimeout bounds a single websocket write
const writeTimeout = 5 * time.Second

// StateMessage is sent to a feed subscriber on connect
type StateMessage struct {
	Type  string            `json:"type"`
	State calibration.State `json:"state"`
}

// ChangeMessage is broadcast for every calibration change
type ChangeMessage struct {
	Type  string            `json:"type"`
	Event calibration.Event `json:"event"`
	State calibration.State `json:"state"`
}

// CalibrationRequest is the body of PUT /api/calibration
type CalibrationRequest struct {
	UserValue *float64 `json:"userValue"`
}

// EnabledRequest is the body of PUT /api/calibration/enabled
type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// PrescriptionRequest is the body of PUT /api/calibration/prescription
type PrescriptionRequest struct {
	Value string `json:"value"`
}

// DeviceResponse is the body of GET /api/device
type DeviceResponse struct {
	Profile     device.Profile `json:"profile"`
	Calibration float64        `json:"calibration"`
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	cfg         *config.Config
	analyzer    *analyzer.Analyzer
	processor   *processing.Processor
	detector    *device.Detector
	calibration *calibration.Manager
	metrics     *metrics.Metrics

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}

	unsubscribe func()
}

// New creates a new server. It subscribes to the manager's bus until Close.
func New(cfg *config.Config, an *analyzer.Analyzer, cal *calibration.Manager, mt *metrics.Metrics) *Server {
	s := &Server{
		cfg:         cfg,
		analyzer:    an,
		processor:   processing.NewProcessor(),
		detector:    device.NewWithConfig(cfg.Device),
		calibration: cal,
		metrics:     mt,
		conns:       make(map[*websocket.Conn]struct{}),
	}
	s.unsubscribe = cal.Bus().Subscribe(s.broadcast)
	return s
}

// Close stops broadcasting calibration changes
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("GET /api/events", s.handleEvents)

	// REST API
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/analyze/overlay", s.handleOverlay)
	mux.HandleFunc("POST /api/correct", s.handleCorrect)
	mux.HandleFunc("GET /api/device", s.handleDevice)
	mux.HandleFunc("GET /api/calibration", s.handleGetCalibration)
	mux.HandleFunc("PUT /api/calibration", s.handlePutCalibration)
	mux.HandleFunc("PUT /api/calibration/enabled", s.handlePutEnabled)
	mux.HandleFunc("PUT /api/calibration/prescription", s.handlePutPrescription)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Set("Access-Control-Expose-Headers", "X-Filter, X-Content-Class")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && allowed == origin {
			return origin
		}
	}
	return ""
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	patterns := []string{"*"}
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		patterns = s.cfg.Server.AllowedOrigins
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: patterns,
	})
	if err != nil {
		log.Error().Err(err).Msg("Websocket accept failed")
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.metrics.SubscriberDelta(1)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.metrics.SubscriberDelta(-1)
	}()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Calibration feed connected")

	// The feed is one-way; CloseRead discards client messages and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	err = wsjson.Write(writeCtx, conn, StateMessage{Type: "state", State: s.calibration.State()})
	cancel()
	if err != nil {
		log.Debug().Err(err).Msg("Initial state write failed")
		return
	}

	<-ctx.Done()
}

// broadcast runs on the publishing goroutine, so writes are handed off
func (s *Server) broadcast(ev calibration.Event) {
	msg := ChangeMessage{Type: "change", Event: ev, State: s.calibration.State()}

	s.mu.RLock()
	for conn := range s.conns {
		go func(c *websocket.Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			if err := wsjson.Write(ctx, c, msg); err != nil {
				log.Debug().Err(err).Msg("Feed write failed")
			}
		}(conn)
	}
	s.mu.RUnlock()
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	img, err := s.readImage(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result := s.analyzer.AnalyzeSync(types.FromImage(img))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	img, err := s.readImage(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result := s.analyzer.AnalyzeSync(types.FromImage(img))
	overlay := s.processor.CreateRegionOverlay(img, result.TextRegions, result.ContrastMap.LowContrastAreas)
	s.writeImage(w, overlay, "png")
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	settings, err := settingsFromQuery(r, s.cfg.Settings())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	img, err := s.readImage(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cal := s.calibration.EffectiveValue(s.detector.Detect(device.FromRequest(r)))
	if v := r.URL.Query().Get("calibration"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || !s.cfg.Scale.IsValidInternalScale(parsed) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid calibration %q", v))
			return
		}
		cal = parsed
	}

	analysis := s.analyzer.AnalyzeSync(types.FromImage(img))
	params := correction.Decide(settings, cal, &analysis)

	var out image.Image = img
	if settings.IsEnabled {
		out = s.processor.Enhance(img, params.Processing())
	}

	w.Header().Set("X-Filter", params.CSS())
	w.Header().Set("X-Content-Class", string(analysis.ContentType))

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "png"
	}
	s.writeImage(w, out, format)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	profile := s.detector.Detect(device.FromRequest(r))
	writeJSON(w, http.StatusOK, DeviceResponse{
		Profile:     profile,
		Calibration: s.calibration.EffectiveValue(profile),
	})
}

func (s *Server) handleGetCalibration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.calibration.State())
}

func (s *Server) handlePutCalibration(w http.ResponseWriter, r *http.Request) {
	var req CalibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserValue == nil {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"userValue\": number}"))
		return
	}

	values, err := s.calibration.Calibrate(*req.UserValue)
	if errors.Is(err, scale.ErrOutOfRange) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) handlePutEnabled(w http.ResponseWriter, r *http.Request) {
	var req EnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"enabled\": bool}"))
		return
	}
	if err := s.calibration.SetEnabled(*req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.calibration.State())
}

func (s *Server) handlePutPrescription(w http.ResponseWriter, r *http.Request) {
	var req PrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.calibration.SetPrescription(req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.calibration.State())
}

func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (image.Image, error) {
	limit := int64(s.cfg.Server.MaxUploadMB) << 20
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}
	return s.processor.DecodeBytes(data)
}

func (s *Server) writeImage(w http.ResponseWriter, img image.Image, format string) {
	var buf bytes.Buffer
	if err := s.processor.Encode(&buf, img, format, s.cfg.Output.Quality); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	contentType := "image/" + format
	if format == "jpg" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(buf.Bytes())
}

// settingsFromQuery overlays reading, contrast, edge and enabled query
// parameters on base
func settingsFromQuery(r *http.Request, base correction.VisionSettings) (correction.VisionSettings, error) {
	q := r.URL.Query()
	var patch correction.SettingsPatch

	floats := []struct {
		name string
		dst  **float64
	}{
		{"reading", &patch.ReadingVision},
		{"contrast", &patch.ContrastBoost},
		{"edge", &patch.EdgeEnhancement},
	}
	for _, f := range floats {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return base, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = &v
	}
	if raw := q.Get("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return base, fmt.Errorf("invalid enabled: %w", err)
		}
		patch.IsEnabled = &v
	}

	settings := patch.Apply(base)
	if err := settings.Validate(); err != nil {
		return base, err
	}
	return settings, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
