package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatdesk/internal/clock"
	"chatdesk/internal/domain"
	"chatdesk/internal/logging"
	"chatdesk/internal/session"
)

const (
	minMessageRunes         = 2
	defaultMaxMessageLength = 2000
	defaultLLMTimeout       = 20 * time.Second
	defaultContextMessages  = session.DefaultMaxMessages
	logMessageRunes         = 80
	unknownTenantLabel      = "unknown"
)

type RateLimiter interface {
	Allow(key string) bool
}

type SessionLeaser interface {
	Acquire(sessionID, tenantID string) (*session.Lease, error)
}

type ProfileResolver interface {
	Resolve(tenantID string) domain.TenantProfile
	Known(tenantID string) bool
}

// Completer is the language model capability: role-tagged messages in, one
// reply out.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

type TicketStore interface {
	Get(ctx context.Context, tenantID, id string) (domain.Ticket, error)
	Save(ctx context.Context, t domain.Ticket) error
	List(ctx context.Context, tenantID string, f domain.TicketFilter) ([]domain.Ticket, error)
}

// Classifier suggests a ticket priority from the customer's message.
type Classifier interface {
	Classify(ctx context.Context, tenantID, message string) (domain.Priority, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

type Recorder interface {
	ChatRequest(tenant, outcome string)
	LLMCall(d time.Duration, ok bool)
	TicketEvent(name string)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatDeps are the collaborators of ChatService. Classifier, Publisher,
// Metrics, Locks, Logger and Clock are optional.
type ChatDeps struct {
	Limiter    RateLimiter
	Sessions   SessionLeaser
	Tickets    TicketStore
	Profiles   ProfileResolver
	LLM        Completer
	Classifier Classifier
	Publisher  EventPublisher
	Metrics    Recorder
	Locks      *KeyLocks
	Logger     *zap.Logger
	Clock      clock.Clock
}

type ChatOptions struct {
	MaxMessageLength int
	LLMTimeout       time.Duration
	// ContextMessages bounds the ticket transcript sent to the model.
	ContextMessages int
}

// ChatService answers customer messages for both the ephemeral session
// variant and the persisted ticket variant.
type ChatService struct {
	limiter    RateLimiter
	sessions   SessionLeaser
	tickets    TicketStore
	profiles   ProfileResolver
	llm        Completer
	classifier Classifier
	publisher  EventPublisher
	metrics    Recorder
	locks      *KeyLocks
	log        *zap.Logger
	clock      clock.Clock

	maxMessageLength int
	llmTimeout       time.Duration
	contextMessages  int
}

type ChatInput struct {
	TenantID  string
	SessionID string
	TicketID  string
	// Persist selects the ticket variant even without a TicketID; a new
	// ticket is then opened.
	Persist  bool
	Message  string
	ClientIP string
}

type ChatOutput struct {
	Reply          string
	SessionID      string
	TicketID       string
	PublicTicketID string
	Status         domain.TicketStatus
	Priority       domain.Priority
}

func NewChatService(deps ChatDeps, opts ChatOptions) (*ChatService, error) {
	if deps.Limiter == nil {
		return nil, errors.New("usecase: rate limiter must not be nil")
	}
	if deps.Sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if deps.Tickets == nil {
		return nil, errors.New("usecase: ticket store must not be nil")
	}
	if deps.Profiles == nil {
		return nil, errors.New("usecase: profile resolver must not be nil")
	}
	if deps.LLM == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if opts.MaxMessageLength < minMessageRunes {
		opts.MaxMessageLength = defaultMaxMessageLength
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = defaultLLMTimeout
	}
	if opts.ContextMessages <= 0 {
		opts.ContextMessages = defaultContextMessages
	}
	s := &ChatService{
		limiter:          deps.Limiter,
		sessions:         deps.Sessions,
		tickets:          deps.Tickets,
		profiles:         deps.Profiles,
		llm:              deps.LLM,
		classifier:       deps.Classifier,
		publisher:        deps.Publisher,
		metrics:          deps.Metrics,
		locks:            deps.Locks,
		log:              deps.Logger,
		clock:            deps.Clock,
		maxMessageLength: opts.MaxMessageLength,
		llmTimeout:       opts.LLMTimeout,
		contextMessages:  opts.ContextMessages,
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.locks == nil {
		s.locks = NewKeyLocks()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	return s, nil
}

// Respond runs one exchange. Rate limiting and validation happen before any
// state is touched; a failed model call leaves history unchanged.
func (s *ChatService) Respond(ctx context.Context, in ChatInput) (out ChatOutput, err error) {
	tenantID := strings.TrimSpace(in.TenantID)
	defer func() { s.metrics.ChatRequest(s.metricTenant(tenantID), outcome(err)) }()

	if !s.limiter.Allow(rateKey(in)) {
		return ChatOutput{}, &Error{Code: ErrorRateLimited, Reason: "rate_limited", Reply: ReplyRateLimited}
	}

	message := strings.TrimSpace(in.Message)
	if err := s.validate(tenantID, message, in); err != nil {
		return ChatOutput{}, err
	}

	profile := s.profiles.Resolve(tenantID)
	if in.TicketID != "" || in.Persist {
		return s.respondTicket(ctx, tenantID, strings.TrimSpace(in.TicketID), profile, message)
	}
	return s.respondSession(ctx, tenantID, strings.TrimSpace(in.SessionID), profile, message)
}

func (s *ChatService) validate(tenantID, message string, in ChatInput) *Error {
	if tenantID == "" {
		return invalid("missing_tenant", ReplyMissingTenant)
	}
	if in.TicketID == "" && !in.Persist && strings.TrimSpace(in.SessionID) == "" {
		return invalid("missing_session", ReplyMissingSession)
	}
	n := utf8.RuneCountInString(message)
	if n < minMessageRunes {
		return invalid("message_too_short", ReplyTooShort)
	}
	if n > s.maxMessageLength {
		return invalid("message_too_long", ReplyTooLong)
	}
	return nil
}

func (s *ChatService) respondSession(ctx context.Context, tenantID, sessionID string, profile domain.TenantProfile, message string) (ChatOutput, error) {
	lease, err := s.sessions.Acquire(sessionID, tenantID)
	if errors.Is(err, session.ErrTenantMismatch) {
		return ChatOutput{}, &Error{Code: ErrorInvalidInput, Reason: "session_tenant_mismatch", Reply: ReplySessionMismatch, Err: err}
	}
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "session_acquire_error", err)
	}
	defer lease.Release()

	reply, err := s.complete(ctx, tenantID, "session:"+sessionID, profile, lease.History(), message)
	if err != nil {
		return ChatOutput{}, err
	}
	lease.Append(
		domain.ChatMessage{Role: domain.RoleUser, Content: message},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: reply},
	)
	return ChatOutput{Reply: reply, SessionID: sessionID}, nil
}

func (s *ChatService) respondTicket(ctx context.Context, tenantID, ticketID string, profile domain.TenantProfile, message string) (ChatOutput, error) {
	var (
		ticket domain.Ticket
		events []string
	)
	if ticketID == "" {
		now := s.clock.Now()
		ticket = *domain.NewTicket(newUUID(), newPublicID(), tenantID, now)
		events = append(events, domain.EventTicketCreated)
	} else {
		unlock := s.locks.Lock(tenantID + "/" + ticketID)
		defer unlock()

		loaded, err := s.tickets.Get(ctx, tenantID, ticketID)
		if errors.Is(err, domain.ErrTicketNotFound) {
			return ChatOutput{}, &Error{Code: ErrorNotFound, Reason: "ticket_not_found", Reply: ReplyNotFound, Err: err}
		}
		if err != nil {
			return ChatOutput{}, newError(ErrorInternal, "ticket_load_error", err)
		}
		ticket = loaded
	}

	reply, err := s.complete(ctx, tenantID, "ticket:"+ticket.ID, profile, ticket.ContextWindow(s.contextMessages), message)
	if err != nil {
		return ChatOutput{}, err
	}

	now := s.clock.Now()
	if ticket.RecordExchange(message, reply, now) {
		events = append(events, domain.EventTicketReopened)
	}
	events = append(events, s.triage(ctx, &ticket, message, now)...)

	if err := s.tickets.Save(ctx, ticket); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "ticket_save_error", err)
	}
	for _, name := range events {
		publish(ctx, s.publisher, s.metrics, name, &ticket, now)
	}

	return ChatOutput{
		Reply:          reply,
		TicketID:       ticket.ID,
		PublicTicketID: ticket.PublicID,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
	}, nil
}

// triage only ever promotes to high; classifier failures are logged and the
// exchange proceeds.
func (s *ChatService) triage(ctx context.Context, t *domain.Ticket, message string, now time.Time) []string {
	if s.classifier == nil || t.Priority == domain.PriorityHigh {
		return nil
	}
	p, err := s.classifier.Classify(ctx, t.TenantID, message)
	if err != nil {
		s.log.Warn("triage failed", zap.String("tenant_id", t.TenantID), zap.String("ticket_id", t.ID), zap.Error(err))
		return nil
	}
	if p != domain.PriorityHigh {
		return nil
	}
	if changed, _ := t.SetPriority(domain.PriorityHigh, now); !changed {
		return nil
	}
	return []string{domain.EventTicketPriorityChanged, domain.EventTicketImportant}
}

func (s *ChatService) complete(ctx context.Context, tenantID, ref string, profile domain.TenantProfile, history []domain.ChatMessage, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	start := s.clock.Now()
	reply, err := s.llm.Complete(ctx, buildPromptMessages(profile, history, message))
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = errEmptyReply
	}
	s.metrics.LLMCall(s.clock.Now().Sub(start), err == nil)

	if err != nil {
		reason := "llm_error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "llm_timeout"
		} else if status, ok := upstreamStatusCode(err); ok && status == 429 {
			reason = "llm_rate_limited"
		}
		s.log.Warn("language model call failed",
			zap.String("tenant_id", tenantID),
			zap.String("ref", ref),
			zap.String("reason", reason),
			zap.String("message", logging.Truncate(message, logMessageRunes)),
			zap.Error(err),
		)
		return "", &Error{Code: ErrorUpstream, Reason: reason, Reply: ReplyApology, Err: err}
	}
	return reply, nil
}

var errEmptyReply = errors.New("usecase: empty model reply")

// rateKey prefers the session, then the ticket, then the client address.
func rateKey(in ChatInput) string {
	if id := strings.TrimSpace(in.SessionID); id != "" {
		return "session:" + id
	}
	if id := strings.TrimSpace(in.TicketID); id != "" {
		return "ticket:" + id
	}
	if ip := strings.TrimSpace(in.ClientIP); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(AsError(err).Code))
}

// metricTenant labels only configured tenants; any other id a caller sends
// shares the "unknown" series.
func (s *ChatService) metricTenant(tenantID string) string {
	if tenantID == "" || !s.profiles.Known(tenantID) {
		return unknownTenantLabel
	}
	return s.profiles.Resolve(tenantID).TenantID
}

var newUUID = func() string {
	return uuid.NewString()
}

// publicIDLength base32 characters carry 50 random bits.
const (
	publicIDPrefix = "SUP-"
	publicIDLength = 10
)

var publicIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newPublicID derives a code agents can read out to customers.
var newPublicID = func() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return publicIDPrefix + publicIDEncoding.EncodeToString(b[:])[:publicIDLength]
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) {}

type nopRecorder struct{}

func (nopRecorder) ChatRequest(string, string)  {}
func (nopRecorder) LLMCall(time.Duration, bool) {}
func (nopRecorder) TicketEvent(string)          {}
