package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/neexbeast/parkwait/internal/scheduler"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	ingestor Ingestor
	started  time.Time
	now      func() time.Time
	log      *slog.Logger
}

// NewHandlers constructs Handlers. Uptime is measured from the call.
func NewHandlers(ingestor Ingestor, log *slog.Logger) *Handlers {
	return &Handlers{
		ingestor: ingestor,
		started:  time.Now(),
		now:      time.Now,
		log:      log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type healthResponse struct {
	OK     bool             `json:"ok"`
	Status scheduler.Status `json:"status"`
}

// Health handles GET /health: 200 when the scheduler is healthy, 500 otherwise.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	st := h.ingestor.Status()
	if !st.Healthy() {
		writeJSON(w, http.StatusInternalServerError, healthResponse{OK: false, Status: st})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Status: st})
}

// Uptime handles GET / with the process uptime in seconds.
func (h *Handlers) Uptime(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"uptime": h.now().Sub(h.started).Seconds()})
}

// NotFound answers every unrouted path.
func (h *Handlers) NotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

// RunIngest handles POST /api/v1/ingest/run. The run outlives the request;
// a trigger arriving while a run is in flight is rejected with 409.
func (h *Handlers) RunIngest(w http.ResponseWriter, r *http.Request) {
	if !h.ingestor.TriggerAsync(context.WithoutCancel(r.Context())) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "ingestion already running"})
		return
	}
	h.log.Info("manual ingestion triggered", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// ReadyHandlerFunc returns an http.HandlerFunc that checks the document
// store and, when configured, redis. A nil redis is reported as disabled.
func ReadyHandlerFunc(store Pinger, redis Pinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		storeStatus := "ok"
		redisStatus := "disabled"

		if err := store.Ping(ctx); err != nil {
			log.Error("readiness check: store ping failed", "err", err)
			storeStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if redis != nil {
			redisStatus = "ok"
			if err := redis.Ping(ctx); err != nil {
				log.Error("readiness check: redis ping failed", "err", err)
				redisStatus = "error"
				status = http.StatusServiceUnavailable
			}
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]string{
			"status": overall,
			"store":  storeStatus,
			"redis":  redisStatus,
		})
	}
}
