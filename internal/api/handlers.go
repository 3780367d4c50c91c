package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillcast/quillmail/internal/events"
	"github.com/quillcast/quillmail/internal/linkrewrite"
	"github.com/quillcast/quillmail/internal/pkg/logger"
	emailsvc "github.com/quillcast/quillmail/internal/service/email"
	"github.com/quillcast/quillmail/internal/service/suppression"
)

// Handlers carries the HTTP layer's collaborators.
type Handlers struct {
	emails       *emailsvc.Service
	suppressions *suppression.Service
	processor    *events.Processor
	rewriter     *linkrewrite.Rewriter
	bus          events.Publisher
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(emails *emailsvc.Service, suppressions *suppression.Service,
	processor *events.Processor, rewriter *linkrewrite.Rewriter, bus events.Publisher) *Handlers {
	return &Handlers{
		emails:       emails,
		suppressions: suppressions,
		processor:    processor,
		rewriter:     rewriter,
		bus:          bus,
	}
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Error("encode response", "err", err.Error())
		}
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateEmail triggers a send for a published post.
func (h *Handlers) CreateEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostID string `json:"post_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostID == "" {
		respondError(w, http.StatusBadRequest, "post_id is required")
		return
	}

	email, err := h.emails.CreateEmail(r.Context(), req.PostID)
	if err != nil {
		switch {
		case errors.Is(err, emailsvc.ErrPostNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, emailsvc.ErrNoNewsletter), errors.Is(err, emailsvc.ErrNewsletterArchived):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, emailsvc.ErrAlreadySent):
			respondError(w, http.StatusConflict, err.Error())
		default:
			logger.Error("create email", "post_id", req.PostID, "err", err.Error())
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	respondJSON(w, http.StatusCreated, email)
}

// GetEmail returns one email row for status polling.
func (h *Handlers) GetEmail(w http.ResponseWriter, r *http.Request) {
	email, err := h.emails.GetEmail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, emailsvc.ErrEmailNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, email)
}

// RetryEmail re-schedules a send that did not finish submitting.
func (h *Handlers) RetryEmail(w http.ResponseWriter, r *http.Request) {
	email, err := h.emails.RetryEmail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, emailsvc.ErrEmailNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, emailsvc.ErrAlreadySubmitted):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	respondJSON(w, http.StatusOK, email)
}

// ListSuppressions pages through the suppression list.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, total, err := h.suppressions.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"suppressions": entries,
		"total":        total,
	})
}

// GetSuppression returns the suppression state of one address.
func (h *Handlers) GetSuppression(w http.ResponseWriter, r *http.Request) {
	data, err := h.suppressions.GetSuppressionData(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, data)
}

// BulkSuppressionCheck returns suppression state for many addresses in
// input order.
func (h *Handlers) BulkSuppressionCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emails []string `json:"emails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Emails) == 0 {
		respondError(w, http.StatusBadRequest, "emails is required")
		return
	}

	data, err := h.suppressions.GetBulkSuppressionData(r.Context(), req.Emails)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, data)
}

// RemoveSuppression clears a suppression, for example after a support
// request. Succeeds even when the address was never suppressed.
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	removed, err := h.suppressions.RemoveEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		if errors.Is(err, suppression.ErrEmptyEmail) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// MailEventWebhook ingests provider delivery-outcome notifications.
// Accepts a single event object or an array; malformed entries are
// dropped, storage failures return 500 so the provider redelivers.
func (h *Handlers) MailEventWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	payloads := splitEvents(body)
	for _, raw := range payloads {
		if err := h.processor.ProcessPayload(r.Context(), raw); err != nil {
			logger.Error("mail event ingestion failed", "err", err.Error())
			respondError(w, http.StatusInternalServerError, "storage failure")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{"received": len(payloads)})
}

// splitEvents tolerates both the provider's array form and a single
// object.
func splitEvents(body []byte) []json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err == nil {
			return batch
		}
	}
	return []json.RawMessage{trimmed}
}

// Redirect resolves a tracked link and sends the visitor to the
// original destination, publishing the click for analytics. The
// redirect must work even when the click cannot be recorded.
func (h *Handlers) Redirect(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	sig := chi.URLParam(r, "sig")

	emailID, dest, err := h.rewriter.DecodeToken(token, sig)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown link")
		return
	}

	memberUUID := r.URL.Query().Get("m")
	if memberUUID != "" && memberUUID != linkrewrite.RecipientPlaceholder {
		h.bus.Publish(events.DomainEvent{
			Type:      events.DomainEmailClicked,
			EmailID:   emailID,
			Recipient: memberUUID,
			Timestamp: time.Now().UTC(),
		})
	}

	http.Redirect(w, r, dest, http.StatusFound)
}
