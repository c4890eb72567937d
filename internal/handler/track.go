package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/OYD-Protocol/shoptrack/internal/enricher"
	"github.com/OYD-Protocol/shoptrack/internal/event"
	"github.com/OYD-Protocol/shoptrack/internal/identity"
)

// EventSink accepts one validated event for persistence.
type EventSink interface {
	ProduceEvent(ctx context.Context, ev event.Event) error
}

// IdentityResolver resolves an opaque credential to a caller snapshot.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (*identity.Identity, error)
}

// Limiter gates ingest per source key.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

type TrackHandler struct {
	sink     EventSink
	resolver IdentityResolver
	limiter  Limiter
	enricher *enricher.Enricher
	now      func() time.Time
}

func NewTrackHandler(sink EventSink, resolver IdentityResolver, limiter Limiter, e *enricher.Enricher) *TrackHandler {
	return &TrackHandler{
		sink:     sink,
		resolver: resolver,
		limiter:  limiter,
		enricher: e,
		now:      time.Now,
	}
}

type trackRequest struct {
	Action      string         `json:"action"`
	ProductID   string         `json:"product_id"`
	ProductName string         `json:"product_name"`
	SearchTerm  string         `json:"search_term"`
	Quantity    *int64         `json:"quantity"`
	OrderValue  *float64       `json:"order_value"`
	Metadata    map[string]any `json:"metadata"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// HandleTrack records one user action. The endpoint is open: a credential is
// optional and a bad one downgrades the event to anonymous instead of
// failing the call.
func (h *TrackHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	if h.limiter != nil && !h.limiter.Allow(r.Context(), r.RemoteAddr) {
		writeJSON(w, http.StatusTooManyRequests, statusResponse{Success: false, Message: "rate limit exceeded"})
		return
	}

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Message: "invalid JSON"})
		return
	}

	ev := event.Event{
		EventID:     uuid.New().String(),
		Action:      event.Action(req.Action),
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		SearchTerm:  req.SearchTerm,
		Quantity:    req.Quantity,
		OrderValue:  req.OrderValue,
		Metadata:    req.Metadata,
		Timestamp:   h.now().UTC(),
	}

	if err := event.Validate(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Message: err.Error()})
		return
	}

	if credential := bearerToken(r); credential != "" {
		id, err := h.resolver.Resolve(r.Context(), credential)
		if err != nil {
			// Invalid or expired credential: keep tracking anonymously.
			log.Debug().Err(err).Msg("Credential resolution failed, tracking anonymously")
		} else {
			ev.CallerID = id.ID
			ev.CallerEmail = id.Email
			ev.CallerName = id.Name
		}
	}

	h.enricher.Enrich(&ev, r.Header.Get("User-Agent"), r.RemoteAddr, r.Header.Get("X-Session-ID"))

	if err := h.sink.ProduceEvent(r.Context(), ev); err != nil {
		log.Error().Err(err).Str("action", string(ev.Action)).Msg("Failed to record event")
		writeJSON(w, http.StatusInternalServerError, statusResponse{Success: false, Message: "could not record action"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "action tracked"})
}

// bearerToken pulls the optional credential from the Authorization header,
// falling back to the legacy Token header the storefront clients still send.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("Token")
}
