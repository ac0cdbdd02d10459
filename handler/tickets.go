package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"chatdesk/internal/domain"
	"chatdesk/internal/usecase"
)

type ticketListResponse struct {
	Tickets []domain.Ticket `json:"tickets"`
}

type ticketUpdateRequest struct {
	Status     *domain.TicketStatus `json:"status"`
	Priority   *domain.Priority     `json:"priority"`
	AssignedTo *string              `json:"assignedTo"`
}

type noteRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.TicketFilter{
		Status:     domain.TicketStatus(strings.ToLower(q.Get("status"))),
		Priority:   domain.Priority(strings.ToLower(q.Get("priority"))),
		AssignedTo: q.Get("assignedTo"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_limit", Reply: usecase.ReplyInvalidField, Err: err})
			return
		}
		f.Limit = n
	}

	tickets, err := h.tickets.List(r.Context(), agentFrom(r.Context()).TenantID, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	writeJSON(w, http.StatusOK, ticketListResponse{Tickets: tickets})
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.tickets.Get(r.Context(), agentFrom(r.Context()).TenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketUpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Reply: usecase.ReplyInvalidField, Err: err})
		return
	}
	t, err := h.tickets.Update(r.Context(), agentFrom(r.Context()).TenantID, chi.URLParam(r, "id"), usecase.TicketUpdate{
		Status:     req.Status,
		Priority:   req.Priority,
		AssignedTo: req.AssignedTo,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Reply: usecase.ReplyInvalidField, Err: err})
		return
	}
	agent := agentFrom(r.Context())
	note, err := h.tickets.AddNote(r.Context(), agent.TenantID, chi.URLParam(r, "id"), agent.UserID, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}
