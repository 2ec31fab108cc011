// Package api exposes the vertex fit service over HTTP. Tracks arrive as
// JSON perigee states, are fitted with the engine configured at startup,
// and results are persisted and returned in one round trip.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/vertexfit/internal/cluster"
	"github.com/banshee-data/vertexfit/internal/config"
	"github.com/banshee-data/vertexfit/internal/linearize"
	"github.com/banshee-data/vertexfit/internal/monitoring"
	"github.com/banshee-data/vertexfit/internal/propagate"
	"github.com/banshee-data/vertexfit/internal/track"
	"github.com/banshee-data/vertexfit/internal/vertex"
	"github.com/banshee-data/vertexfit/internal/vertexdb"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server binds the fit engine, configuration and persistence together.
type Server struct {
	db     *vertexdb.DB
	cfg    *config.TuningConfig
	fitter *vertex.Fitter
}

// NewServer builds the fit engine from the tuning config and returns the
// HTTP server around it.
func NewServer(db *vertexdb.DB, cfg *config.TuningConfig) (*Server, error) {
	prop := propagate.NewHelixPropagator(cfg.GetBzTesla())
	lin := linearize.NewNumericalLinearizer(prop)

	fitCfg := vertex.Config{
		MaxIterations:    cfg.GetMaxIterations(),
		ConvergenceDelta: cfg.GetConvergenceDelta(),
		Constraint:       constraintFromConfig(cfg),
	}
	fitter, err := vertex.NewFitter(fitCfg, lin)
	if err != nil {
		return nil, err
	}

	return &Server{db: db, cfg: cfg, fitter: fitter}, nil
}

// constraintFromConfig builds the optional beam-spot constraint. All-zero
// variances mean the fit runs unconstrained.
func constraintFromConfig(cfg *config.TuningConfig) *vertex.Constraint {
	vars := cfg.GetConstraintVariances()
	if vars[0] == 0 && vars[1] == 0 && vars[2] == 0 {
		return nil
	}
	cov := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		cov.SetSym(i, i, vars[i])
	}
	return &vertex.Constraint{Position: cfg.GetConstraintPosition(), Covariance: cov}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
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

// ServeMux returns the route table for the fit service.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/fit", s.handleFit)
	mux.HandleFunc("/api/cluster", s.handleCluster)
	mux.HandleFunc("/api/fits", s.listFits)
	mux.HandleFunc("/api/fits/", s.getFit)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// TrackInput is one track in a fit request: a perigee state with a full
// row-major 5x5 covariance, optionally relative to a non-origin reference.
type TrackInput struct {
	D0         float64    `json:"d0"`
	Z0         float64    `json:"z0"`
	Phi        float64    `json:"phi"`
	Theta      float64    `json:"theta"`
	QOverP     float64    `json:"q_over_p"`
	Covariance []float64  `json:"covariance"` // 25 row-major values
	Reference  [3]float64 `json:"reference,omitempty"`
}

// FitRequest is the POST /api/fit payload.
type FitRequest struct {
	Tracks []TrackInput `json:"tracks"`
}

// FitResponse is the POST /api/fit reply.
type FitResponse struct {
	FitID      string          `json:"fit_id"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	Z          float64         `json:"z"`
	Covariance [6]float64      `json:"covariance"` // xx, xy, xz, yy, yz, zz
	Chi2       float64         `json:"chi2"`
	NDF        int             `json:"ndf"`
	Tracks     []FitTrackRefit `json:"tracks"`
}

// FitTrackRefit is one refit track in a fit reply.
type FitTrackRefit struct {
	Chi2   float64 `json:"chi2"`
	Phi    float64 `json:"phi"`
	Theta  float64 `json:"theta"`
	QOverP float64 `json:"q_over_p"`
}

func (ti TrackInput) toTrack() (track.Track, error) {
	if len(ti.Covariance) != track.NumParams*track.NumParams {
		return nil, errors.New("covariance must have 25 row-major values")
	}
	cov := mat.NewSymDense(track.NumParams, nil)
	for i := 0; i < track.NumParams; i++ {
		for j := i; j < track.NumParams; j++ {
			cov.SetSym(i, j, 0.5*(ti.Covariance[i*track.NumParams+j]+ti.Covariance[j*track.NumParams+i]))
		}
	}
	return track.ParamTrack{
		Par: track.Parameters{
			Vec: [track.NumParams]float64{ti.D0, ti.Z0, ti.Phi, ti.Theta, ti.QOverP},
			Cov: cov,
		},
		Ref: ti.Reference,
	}, nil
}

func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req FitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	tracks := make([]track.Track, 0, len(req.Tracks))
	for i, ti := range req.Tracks {
		trk, err := ti.toTrack()
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "track "+strconv.Itoa(i)+": "+err.Error())
			return
		}
		tracks = append(tracks, trk)
	}

	fitted, err := s.fitter.Fit(tracks)
	if err != nil {
		// Singular geometry and propagation failures are properties of
		// the submitted tracks, not server faults.
		status := http.StatusUnprocessableEntity
		if !errors.Is(err, vertex.ErrSingularCovariance) &&
			!errors.Is(err, vertex.ErrSingularInformation) &&
			!errors.Is(err, vertex.ErrPropagation) {
			status = http.StatusInternalServerError
		}
		s.writeJSONError(w, status, err.Error())
		return
	}

	fitID := "fit_" + uuid.NewString()
	if s.db != nil {
		if err := s.db.RecordFit(fitID, fitted, s.cfg.GetConstraintVariances() != [3]float64{}); err != nil {
			monitoring.Logf("failed to record fit %s: %v", fitID, err)
		}
	}

	resp := FitResponse{
		FitID: fitID,
		X:     fitted.Position[0],
		Y:     fitted.Position[1],
		Z:     fitted.Position[2],
		Chi2:  fitted.Chi2,
		NDF:   fitted.NDF,
	}
	if fitted.Covariance != nil {
		resp.Covariance = [6]float64{
			fitted.Covariance.At(0, 0), fitted.Covariance.At(0, 1), fitted.Covariance.At(0, 2),
			fitted.Covariance.At(1, 1), fitted.Covariance.At(1, 2), fitted.Covariance.At(2, 2),
		}
	}
	for _, tav := range fitted.Tracks {
		resp.Tracks = append(resp.Tracks, FitTrackRefit{
			Chi2:   tav.Chi2,
			Phi:    tav.Parameters.Phi(),
			Theta:  tav.Parameters.Theta(),
			QOverP: tav.Parameters.QOverP(),
		})
	}

	json.NewEncoder(w).Encode(resp)
}

// ClusterRequest is the POST /api/cluster payload.
type ClusterRequest struct {
	Cells []cluster.Cell `json:"cells"`
}

// ClusterGroup is one labeled cluster in the reply.
type ClusterGroup struct {
	Cells       []cluster.Cell `json:"cells"`
	TotalEnergy float64        `json:"total_energy"`
}

// handleCluster labels submitted digitization cells into connected
// clusters using the configured energy cut and connectivity.
func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	groups := cluster.CreateClusters(req.Cells, s.cfg.GetClusterCommonCorner(), s.cfg.GetClusterEnergyCut())
	resp := make([]ClusterGroup, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, ClusterGroup{Cells: g, TotalEnergy: cluster.TotalEnergy(g)})
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) listFits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	fits, err := s.db.ListFits(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fits == nil {
		fits = []vertexdb.FitSummary{}
	}
	json.NewEncoder(w).Encode(fits)
}

func (s *Server) getFit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	fitID := strings.TrimPrefix(r.URL.Path, "/api/fits/")
	if fitID == "" || strings.Contains(fitID, "/") {
		s.writeJSONError(w, http.StatusBadRequest, "invalid fit id")
		return
	}

	rec, err := s.db.GetFit(fitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeJSONError(w, http.StatusNotFound, "fit not found")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	json.NewEncoder(w).Encode(rec)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	json.NewEncoder(w).Encode(s.cfg)
}
