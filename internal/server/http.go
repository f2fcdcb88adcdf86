package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/core/systems/physics"
	"github.com/zeusync/salvo/pkg/generic"
)

const maxBodyBytes = 1 << 20

// HTTPHandler serves the JSON API and the /ws upgrade.
type HTTPHandler struct {
	svc    *Service
	ws     *WebSocketHandler
	auth   *TokenAuth
	logger log.Log
	mux    *http.ServeMux
	next   http.Handler
}

func NewHTTPHandler(svc *Service, ws *WebSocketHandler, auth *TokenAuth, logger log.Log) *HTTPHandler {
	h := &HTTPHandler{
		svc:    svc,
		ws:     ws,
		auth:   auth,
		logger: logger.With(log.String("component", "http")),
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /v1/solve", h.handleSolve)
	h.mux.HandleFunc("POST /v1/solve/batch", h.handleSolveBatch)
	h.mux.HandleFunc("POST /v1/trajectory", h.handleTrajectory)
	h.mux.HandleFunc("GET /v1/battery", h.handleBattery)
	h.mux.HandleFunc("POST /v1/mark", h.handleMark)
	h.mux.HandleFunc("POST /v1/fire", h.handleFire)
	h.mux.Handle("GET /ws", ws)
	h.next = auth.Middleware(h.mux)
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)
	ctx := log.ContextWithRequestID(r.Context(), requestID)
	r = r.WithContext(ctx)

	h.logger.WithContext(ctx).Debug("Request", log.String("method", r.Method), log.String("path", r.URL.Path))
	h.next.ServeHTTP(w, r)
}

func (h *HTTPHandler) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req ballistics.ShotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Solve(req))
}

func (h *HTTPHandler) handleSolveBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []ballistics.ShotRequest
	if !decodeBody(w, r, &reqs) {
		return
	}
	results, err := h.svc.SolveBatch(r.Context(), reqs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *HTTPHandler) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	var req TrajectoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.Trajectory(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *HTTPHandler) handleBattery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *HTTPHandler) handleMark(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target *physics.Vec3 `json:"target"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Target == nil {
		writeError(w, errors.Wrap(ErrInvalidMessage, "target is required"))
		return
	}
	res, err := h.svc.Mark(*body.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *HTTPHandler) handleFire(w http.ResponseWriter, _ *http.Request) {
	if err := h.svc.Fire(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "firing"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, errors.Wrap(ErrInvalidMessage, err.Error()))
		return false
	}
	return true
}

var bufferPool = generic.NewHotPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset, 16)

func writeJSON(w http.ResponseWriter, status int, v any) {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}
