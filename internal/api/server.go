// Package api serves the occupancy map, sensor state and survey history over
// HTTP, plus a websocket feed of completed mapping cycles.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/rangemap/internal/db"
	"github.com/banshee-data/rangemap/internal/httputil"
	"github.com/banshee-data/rangemap/internal/mapper"
	"github.com/banshee-data/rangemap/internal/mapview"
	"github.com/banshee-data/rangemap/internal/monitoring"
	"github.com/banshee-data/rangemap/internal/navigation"
	"github.com/banshee-data/rangemap/internal/robotapi"
	"github.com/banshee-data/rangemap/internal/security"
	"github.com/banshee-data/rangemap/internal/sensor"
	"github.com/banshee-data/rangemap/internal/survey"
)

// ANSI escape codes for request logging.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// DefaultScanLimit is used by /api/scans when no limit is given.
const DefaultScanLimit = 20

// ScanLister is the read side of the scan store. *db.DB satisfies it.
type ScanLister interface {
	RecentScans(limit int) ([]db.ScanRecord, error)
}

// Deps are the collaborators the server reads from. Mapper is required;
// endpoints whose dependency is nil answer 503.
type Deps struct {
	Mapper    *mapper.Mapper
	Lidar     *sensor.RangeSensor
	IR        *sensor.ProximitySensor
	Surveyor  *survey.Surveyor
	Navigator *navigation.SafeNavigator
	Scans     ScanLister
	Hub       *Hub
	Metrics   *monitoring.MapperMetrics

	// ValidatePath checks paths for /api/map/record. Defaults to
	// security.ValidateMapPath.
	ValidatePath func(string) error
}

type Server struct {
	Deps
}

func NewServer(d Deps) *Server {
	if d.ValidatePath == nil {
		d.ValidatePath = security.ValidateMapPath
	}
	return &Server{Deps: d}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

// Hijack is needed for the websocket upgrade on /ws.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer cannot be hijacked")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/map", s.showMap)
	mux.HandleFunc("/api/map.txt", s.showMapText)
	mux.HandleFunc("/api/map.png", s.showMapPNG)
	mux.HandleFunc("/api/map.html", s.showMapHTML)
	mux.HandleFunc("/api/map/record", s.recordMap)
	mux.HandleFunc("/api/origin", s.origin)
	mux.HandleFunc("/api/sensors/lidar", s.showLidar)
	mux.HandleFunc("/api/sensors/ir", s.showIR)
	mux.HandleFunc("/api/scan", s.runScan)
	mux.HandleFunc("/api/scans", s.listScans)
	mux.HandleFunc("/api/navigate", s.navigate)
	if s.Hub != nil {
		mux.HandleFunc("/ws", s.Hub.ServeWS)
	}
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	return mux
}

// sensorError maps sensor and link failures onto HTTP statuses.
func sensorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sensor.ErrIndexOutOfRange):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, sensor.ErrSourceUnavailable), errors.Is(err, robotapi.ErrNotConnected):
		httputil.ServiceUnavailable(w, err.Error())
	case errors.Is(err, robotapi.ErrDeviceError), errors.Is(err, robotapi.ErrMalformedReply), errors.Is(err, robotapi.ErrWriteFailed):
		httputil.WriteJSONError(w, http.StatusBadGateway, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		httputil.MethodNotAllowed(w)
		return false
	}
	return true
}

func (s *Server) showMap(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.Mapper.Snapshot())
}

func (s *Server) showMapText(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteBody(w, "text/plain; charset=utf-8", s.Mapper.EncodeText())
}

func (s *Server) showMapPNG(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	var buf bytes.Buffer
	if err := mapview.RenderPNG(&buf, s.Mapper.Snapshot()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render map: %v", err))
		return
	}
	httputil.WriteBody(w, "image/png", buf.Bytes())
}

func (s *Server) showMapHTML(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	var buf bytes.Buffer
	if err := mapview.RenderHTML(&buf, s.Mapper.Snapshot()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render map: %v", err))
		return
	}
	httputil.WriteBody(w, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) recordMap(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		httputil.BadRequest(w, "missing 'path' parameter")
		return
	}
	if err := s.ValidatePath(path); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid path: %v", err))
		return
	}
	if err := s.Mapper.WriteMap(path); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("record map: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"path":     path,
		"occupied": s.Mapper.Snapshot().Occupied,
	})
}

type originBody struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (s *Server) origin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var body originBody
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid origin: %v", err))
			return
		}
		s.Mapper.SetOrigin(body.X, body.Y)
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	x, y := s.Mapper.Origin()
	httputil.WriteJSONOK(w, originBody{X: x, Y: y})
}

// refreshRequested reports whether ?refresh=true (or 1) was given.
func refreshRequested(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return v
}

type lidarResponse struct {
	Samples []float64       `json:"samples"`
	Summary *sensor.Summary `json:"summary,omitempty"`
}

type lidarSample struct {
	Index   int     `json:"index"`
	Range   float64 `json:"range"`
	Bearing float64 `json:"bearing"`
}

func (s *Server) showLidar(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.Lidar == nil {
		httputil.ServiceUnavailable(w, "lidar not configured")
		return
	}
	if refreshRequested(r) {
		if err := s.exclusive(func() error { return s.Lidar.Refresh(r.Context()) }); err != nil {
			sensorError(w, err)
			return
		}
	}

	if q := r.URL.Query().Get("index"); q != "" {
		i, err := strconv.Atoi(q)
		if err != nil {
			httputil.BadRequest(w, "invalid 'index' parameter")
			return
		}
		v, err := s.Lidar.RangeAt(i)
		if err != nil {
			sensorError(w, err)
			return
		}
		httputil.WriteJSONOK(w, lidarSample{Index: i, Range: v, Bearing: s.Lidar.BearingAt(i)})
		return
	}

	resp := lidarResponse{Samples: s.Lidar.Samples()}
	if sum, err := s.Lidar.Summary(); err == nil {
		resp.Summary = &sum
	}
	httputil.WriteJSONOK(w, resp)
}

type irChannel struct {
	Channel int     `json:"channel"`
	Range   float64 `json:"range"`
}

func (s *Server) showIR(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.IR == nil {
		httputil.ServiceUnavailable(w, "proximity sensor not configured")
		return
	}
	if refreshRequested(r) {
		if err := s.exclusive(func() error { return s.IR.Refresh(r.Context()) }); err != nil {
			sensorError(w, err)
			return
		}
	}

	// Out-of-range channels answer with the -1 sentinel, not an error.
	if q := r.URL.Query().Get("channel"); q != "" {
		ch, err := strconv.Atoi(q)
		if err != nil {
			httputil.BadRequest(w, "invalid 'channel' parameter")
			return
		}
		httputil.WriteJSONOK(w, irChannel{Channel: ch, Range: s.IR.ChannelAt(ch)})
		return
	}
	httputil.WriteJSONOK(w, map[string][]float64{"channels": s.IR.Channels()})
}

// exclusive serialises sensor refreshes with survey cycles.
func (s *Server) exclusive(fn func() error) error {
	if s.Surveyor == nil {
		return fn()
	}
	return s.Surveyor.Exclusive(fn)
}

func (s *Server) runScan(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.Surveyor == nil {
		httputil.ServiceUnavailable(w, "surveyor not configured")
		return
	}
	res, err := s.Surveyor.Once(r.Context())
	if err != nil {
		sensorError(w, err)
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.Scans == nil {
		httputil.ServiceUnavailable(w, "scan store not configured")
		return
	}
	limit := DefaultScanLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	scans, err := s.Scans.RecentScans(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve scans: %v", err))
		return
	}
	httputil.WriteJSONOK(w, scans)
}

type navigateResponse struct {
	Direction    string           `json:"direction"`
	State        navigation.State `json:"state"`
	SafeDistance float64          `json:"safe_distance"`
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.Navigator == nil {
		httputil.ServiceUnavailable(w, "navigator not configured")
		return
	}
	dir := r.URL.Query().Get("direction")
	var move func(context.Context) (navigation.State, error)
	switch dir {
	case "forward":
		move = s.Navigator.MoveForwardSafe
	case "backward":
		move = s.Navigator.MoveBackwardSafe
	case "stop":
		move = func(ctx context.Context) (navigation.State, error) {
			err := s.Navigator.Stop(ctx)
			return s.Navigator.State(), err
		}
	default:
		httputil.BadRequest(w, "direction must be forward, backward or stop")
		return
	}
	var state navigation.State
	err := s.exclusive(func() error {
		var moveErr error
		state, moveErr = move(r.Context())
		return moveErr
	})
	if err != nil {
		sensorError(w, err)
		return
	}
	httputil.WriteJSONOK(w, navigateResponse{Direction: dir, State: state, SafeDistance: s.Navigator.SafeDistance()})
}
