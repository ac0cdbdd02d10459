package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatdesk/internal/domain"
	"chatdesk/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 64 << 10
)

type ChatResponder interface {
	Respond(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type TicketManager interface {
	Get(ctx context.Context, tenantID, id string) (domain.Ticket, error)
	List(ctx context.Context, tenantID string, f domain.TicketFilter) ([]domain.Ticket, error)
	Update(ctx context.Context, tenantID, id string, u usecase.TicketUpdate) (domain.Ticket, error)
	AddNote(ctx context.Context, tenantID, id, authorID, content string) (domain.Note, error)
}

// Deps wires the HTTP surface. Tickets and Metrics are optional; without
// Tickets the agent routes are not mounted. TrustProxy takes the client IP
// from forwarding headers instead of the connection.
type Deps struct {
	Chat       ChatResponder
	Tickets    TicketManager
	Metrics    http.Handler
	JWTSecret  string
	TrustProxy bool
	Logger     *zap.Logger
}

type Handler struct {
	chat    ChatResponder
	tickets TicketManager
	log     *zap.Logger
	router  chi.Router
}

type chatRequest struct {
	TenantID     string               `json:"tenantId"`
	SessionID    string               `json:"sessionId"`
	TicketID     string               `json:"ticketId"`
	Message      string               `json:"message"`
	Conversation []domain.ChatMessage `json:"conversation"`
}

type chatResponse struct {
	Reply          string              `json:"reply"`
	SessionID      string              `json:"sessionId,omitempty"`
	TicketID       string              `json:"ticketId,omitempty"`
	PublicTicketID string              `json:"publicTicketId,omitempty"`
	Status         domain.TicketStatus `json:"status,omitempty"`
	Priority       domain.Priority     `json:"priority,omitempty"`
}

type errorResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

func NewHandler(deps Deps) (*Handler, error) {
	if deps.Chat == nil {
		return nil, errors.New("handler: chat responder must not be nil")
	}
	h := &Handler{
		chat:    deps.Chat,
		tickets: deps.Tickets,
		log:     deps.Logger,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}

	r := chi.NewRouter()
	if deps.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(correlation)
	r.Use(accessLog(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	r.Post("/chat", h.handleChat)

	if h.tickets != nil {
		r.Route("/tickets", func(tr chi.Router) {
			tr.Use(requireAgent(deps.JWTSecret))
			tr.Get("/", h.handleListTickets)
			tr.Get("/{id}", h.handleGetTicket)
			tr.Patch("/{id}", h.handleUpdateTicket)
			tr.Post("/{id}/notes", h.handleAddNote)
		})
	}

	h.router = r
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Reply: usecase.ReplyInvalidField, Err: err})
		return
	}

	message := req.Message
	if strings.TrimSpace(message) == "" {
		message = lastUserMessage(req.Conversation)
	}
	out, err := h.chat.Respond(r.Context(), usecase.ChatInput{
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		TicketID:  req.TicketID,
		Persist:   req.Conversation != nil,
		Message:   message,
		ClientIP:  clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Reply:          out.Reply,
		SessionID:      out.SessionID,
		TicketID:       out.TicketID,
		PublicTicketID: out.PublicTicketID,
		Status:         out.Status,
		Priority:       out.Priority,
	})
}

// lastUserMessage picks the newest customer turn of a client-held
// conversation. Earlier entries are ignored; the stored transcript wins.
func lastUserMessage(conv []domain.ChatMessage) string {
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == domain.RoleUser {
			return conv[i].Content
		}
	}
	return ""
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ue := usecase.AsError(err)
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError && ue.Code != usecase.ErrorUpstream {
		h.log.Error("request failed",
			zap.String("correlation_id", correlationID(r.Context())),
			zap.String("reason", ue.Reason),
			zap.Error(ue.Err),
		)
	}
	writeJSON(w, status, errorResponse{Reply: ue.UserReply(), Error: string(ue.Code)})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type ctxKey int

const correlationKey ctxKey = iota

// correlation echoes the caller's correlation id or mints one.
func correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = newCorrelationID()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey, id)))
	})
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

var newCorrelationID = func() string {
	return uuid.NewString()
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("correlation_id", correlationID(r.Context())),
			)
		})
	}
}
