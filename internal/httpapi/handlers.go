package httpapi

import (
	"errors"
	"io"
	"net/http"

	"callkit-core/internal/calls"
	"callkit-core/internal/event"
	"callkit-core/internal/lifecycle"
	"callkit-core/internal/registry"
	"callkit-core/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call internal services, return JSON.
type Handlers struct {
	Calls *calls.Service
}

// Inbound envelopes are small; anything bigger than this is hostile.
const maxEnvelopeBytes = 64 << 10

// Ingest accepts one inbound event envelope (push delivery or native
// callback relay). Malformed envelopes and rejected required fields come
// back 400 with diagnostics; everything else is accepted, including events
// the core decides to ignore.
func (h Handlers) Ingest(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls service not configured"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEnvelopeBytes+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if len(raw) > maxEnvelopeBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "envelope too large"})
		return
	}

	if err := h.Calls.Ingest(c.Request.Context(), raw); err != nil {
		var rej *event.RejectionError
		if errors.As(err, &rej) {
			logger.FromGin(c).Warn("event rejected",
				"field", rej.Field, "kind", string(rej.Kind), "value", rej.Value)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "event rejected",
				"field": rej.Field,
				"kind":  string(rej.Kind),
			})
			return
		}
		if errors.Is(err, event.ErrBadEnvelope) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type recordResponse struct {
	SessionID   string            `json:"session_id"`
	State       string            `json:"state"`
	Muted       bool              `json:"muted"`
	Data        map[string]string `json:"data"`
	LastUpdated string            `json:"last_updated"`
}

func toRecordResponse(rec registry.Record) recordResponse {
	return recordResponse{
		SessionID:   rec.SessionID,
		State:       rec.State.String(),
		Muted:       rec.Muted,
		Data:        rec.Data,
		LastUpdated: rec.LastUpdated.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// GetCurrent returns the ambient current call.
func (h Handlers) GetCurrent(c *gin.Context) {
	rec, ok := h.Calls.CurrentCall(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no current call"})
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(rec))
}

// GetCall returns the record for one session id.
func (h Handlers) GetCall(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	rec, ok := h.Calls.Call(c.Request.Context(), sessionID)
	if !ok {
		// Absence is a state, not an error, for the native layer; report
		// it in the same shape.
		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"state":      lifecycle.StateUnknown.String(),
		})
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(rec))
}

// DeleteCall clears the record for one session id.
func (h Handlers) DeleteCall(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	h.Calls.ClearCall(c.Request.Context(), sessionID)
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// ClearAll wipes the registry and durable storage. Full teardown only.
func (h Handlers) ClearAll(c *gin.Context) {
	h.Calls.ClearAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// GetLastCallID returns the persisted "last call id" pointer.
func (h Handlers) GetLastCallID(c *gin.Context) {
	id, ok := h.Calls.LastCallID(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no last call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id})
}

// GetHistory returns the journal for one session.
func (h Handlers) GetHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	entries, err := h.Calls.History(c.Request.Context(), sessionID)
	if err != nil {
		logger.FromGin(c).Error("history lookup failed", "session_id", sessionID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// GetStats reports registry occupancy.
func (h Handlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Calls.Stats())
}
