package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/thitiwat-dev/go-shortlink/pkg/core/domain"
	"github.com/thitiwat-dev/go-shortlink/pkg/ports"
)

type HTTPHandler struct {
	service ports.LinkService
	baseURL string
}

func NewHTTPHandler(service ports.LinkService, baseURL string) *HTTPHandler {
	return &HTTPHandler{service: service, baseURL: strings.TrimRight(baseURL, "/")}
}

// CreateLinkRequest payload
type CreateLinkRequest struct {
	TargetURL  string `json:"target_url"`
	CustomCode string `json:"custom_code,omitempty"`
}

// DeleteLinkRequest payload
type DeleteLinkRequest struct {
	ID int64 `json:"id"`
}

type createLinkResponse struct {
	ShortURL string `json:"short_url"`
	domain.Link
}

// Create Link
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.E(domain.KindInvalidTarget, "invalid request body"))
		return
	}

	link, err := h.service.Allocate(r.Context(), req.TargetURL, req.CustomCode, OwnerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createLinkResponse{
		ShortURL: h.baseURL + "/" + link.Code,
		Link:     *link,
	})
}

// Redirect to target URL with click accounting
func (h *HTTPHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		writeError(w, domain.E(domain.KindNotFound, "short code missing"))
		return
	}

	targetURL, err := h.service.Resolve(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	// Record the visit detail off the request path; the request context
	// dies with the redirect, and the visit row is advisory anyway.
	if r.URL.Query().Get("no_stat") == "" {
		referer := r.Header.Get("Referer")
		userAgent := r.UserAgent()
		ip := r.RemoteAddr
		go func() {
			_ = h.service.RecordVisit(context.Background(), code, referer, userAgent, ip)
		}()
	}

	http.Redirect(w, r, targetURL, http.StatusFound)
}

// Get Public Link (without redirect, for the stats view)
func (h *HTTPHandler) GetPublicByCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	link, err := h.service.GetByCode(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(link.PublicView())
}

// List the caller's links, newest first
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.service.List(r.Context(), OwnerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if links == nil {
		links = []domain.Link{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(links)
}

// Delete Link by id, owner-scoped
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.E(domain.KindNotFound, "invalid request body"))
		return
	}

	if err := h.service.Delete(r.Context(), req.ID, OwnerID(r)); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "deleted"})
}

// Get Stats for a Link
func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, domain.E(domain.KindNotFound, "invalid id"))
		return
	}

	stats, err := h.service.GetLinkStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// writeError is the single kind-to-status mapping for every route.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)

	var status int
	switch kind {
	case domain.KindInvalidTarget, domain.KindInvalidCode, domain.KindCodeInUse,
		domain.KindCodeRequired, domain.KindDuplicate:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindExhausted:
		status = http.StatusInternalServerError
	default:
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		// Don't leak driver internals to clients.
		msg = "temporarily unavailable, retry later"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   string(kind),
		"message": msg,
	})
}
