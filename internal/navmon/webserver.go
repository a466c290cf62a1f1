// Package navmon exposes the navigation core over HTTP: current estimate
// and counters for operators, plus debug trajectory views rendered from
// the live trail or a recorded run.
package navmon

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/duckietown/duckietown-intnav/internal/config"
	"github.com/duckietown/duckietown-intnav/internal/httputil"
	"github.com/duckietown/duckietown-intnav/internal/monitoring"
	"github.com/duckietown/duckietown-intnav/internal/nav/pipeline"
	"github.com/duckietown/duckietown-intnav/internal/navdb"
	"github.com/duckietown/duckietown-intnav/internal/units"
	"github.com/duckietown/duckietown-intnav/internal/version"
)

// WebServer handles the HTTP interface for monitoring the navigation
// pipeline. It serves health checks, the live estimate and trajectory
// debug views.
type WebServer struct {
	address string
	loop    *pipeline.Loop
	db      *navdb.DB
	tuning  *config.TuningConfig
	server  *http.Server
	started time.Time
}

// WebServerConfig contains configuration options for the web server.
// DB and Tuning are optional; their endpoints answer 404 when absent.
type WebServerConfig struct {
	Address string
	Loop    *pipeline.Loop
	DB      *navdb.DB
	Tuning  *config.TuningConfig
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address: cfg.Address,
		loop:    cfg.Loop,
		db:      cfg.DB,
		tuning:  cfg.Tuning,
		started: time.Now(),
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}
	return ws
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v interface{}) {
	httputil.WriteJSONOK(w, v)
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

// Start begins the HTTP server in a goroutine and blocks until the context
// is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("navmon: starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("navmon: server failed: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("navmon: shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("navmon: shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("navmon: force close error: %v", err)
		}
	}
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/nav/estimate", ws.handleEstimate)
	mux.HandleFunc("/api/nav/status", ws.handleStatus)
	mux.HandleFunc("/api/nav/reset", ws.handleReset)
	mux.HandleFunc("/api/nav/params", ws.handleParams)
	mux.HandleFunc("/api/nav/runs", ws.handleRuns)
	mux.HandleFunc("/debug/nav/trajectory", ws.handleTrajectory)
	mux.HandleFunc("/debug/nav/trajectory.png", ws.handleTrajectoryPNG)

	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]interface{}{
		"status":         "ok",
		"version":        version.Version,
		"uptime_seconds": int64(time.Since(ws.started).Seconds()),
	})
}

// handleEstimate returns the current state estimate. Query params:
//
//	speed_units (optional: mps, cmps, kmph; default mps)
//	angle_units (optional: rad, deg; default rad)
func (ws *WebServer) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	speedUnits := r.URL.Query().Get("speed_units")
	if speedUnits == "" {
		speedUnits = units.MPS
	}
	if !units.IsValidSpeedUnit(speedUnits) {
		ws.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid speed_units %q, expected one of: %s", speedUnits, units.ValidSpeedUnitsString()))
		return
	}
	angleUnits := r.URL.Query().Get("angle_units")
	if angleUnits == "" {
		angleUnits = units.RAD
	}
	if !units.IsValidAngleUnit(angleUnits) {
		ws.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid angle_units %q, expected rad or deg", angleUnits))
		return
	}

	est := ws.loop.Estimate()
	ws.writeJSON(w, map[string]interface{}{
		"frame":       est.Frame,
		"ready":       est.Ready,
		"stamp":       est.Stamp,
		"x":           est.Pose.X,
		"y":           est.Pose.Y,
		"heading":     units.ConvertAngle(est.Pose.Heading, angleUnits),
		"linear":      units.ConvertSpeed(est.Twist.Linear, speedUnits),
		"angular":     est.Twist.Angular,
		"pos_var":     est.PositionUncertainty(),
		"speed_units": speedUnits,
		"angle_units": angleUnits,
	})
}

// handleStatus returns the pipeline snapshot: mode, episode, last tracker
// status, counters and buffer stats.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ws.writeJSON(w, ws.loop.Status())
}

// handleReset re-arms the estimator: the filter regresses to its
// uninitialized state and the live trail is cleared. POST only.
func (ws *WebServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ws.loop.Reset()
	monitoring.Logf("navmon: estimator reset requested")
	ws.writeJSON(w, map[string]interface{}{
		"status": "reset",
		"mode":   ws.loop.Status().Mode,
	})
}

// handleParams returns the active tuning configuration.
func (ws *WebServer) handleParams(w http.ResponseWriter, r *http.Request) {
	if ws.tuning == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no tuning config loaded")
		return
	}
	ws.writeJSON(w, ws.tuning)
}

// handleRuns lists the recorded runs. Requires a database.
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no database configured")
		return
	}
	runs, err := ws.db.Runs()
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}
	type runJSON struct {
		RunID     string     `json:"run_id"`
		StartedAt time.Time  `json:"started_at"`
		EndedAt   *time.Time `json:"ended_at,omitempty"`
		Estimates int64      `json:"estimates"`
		Commands  int64      `json:"commands"`
		Anomalies int64      `json:"anomalies"`
	}
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		rj := runJSON{
			RunID:     run.RunID,
			StartedAt: run.StartedAt,
			Estimates: run.Estimates,
			Commands:  run.Commands,
			Anomalies: run.Anomalies,
		}
		if run.EndedAt.Valid {
			t := run.EndedAt.Time
			rj.EndedAt = &t
		}
		out = append(out, rj)
	}
	ws.writeJSON(w, out)
}

// trailPoints resolves the trajectory source for the debug views: the
// live trail by default, or a recorded run when run_id is given.
func (ws *WebServer) trailPoints(r *http.Request) ([]pipeline.TrailPoint, string, error) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		return ws.loop.Trail(), "live", nil
	}
	if ws.db == nil {
		return nil, "", fmt.Errorf("no database configured for run lookup")
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	rows, err := ws.db.Trail(runID, limit)
	if err != nil {
		return nil, "", err
	}
	points := make([]pipeline.TrailPoint, len(rows))
	for i, row := range rows {
		points[i] = pipeline.TrailPoint{X: row.X, Y: row.Y, Heading: row.Heading, Stamp: row.Stamp}
	}
	return points, runID, nil
}
