package domain

import "time"

// Session is an ephemeral, client-identified conversation thread. The system
// prompt is never part of Messages; it is prepended per request.
type Session struct {
	ID           string
	TenantID     string
	Messages     []ChatMessage
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// TenantProfile is the persona a tenant's widget answers with.
type TenantProfile struct {
	TenantID     string `json:"tenantId" yaml:"tenantId"`
	DisplayName  string `json:"displayName" yaml:"displayName"`
	SystemPrompt string `json:"systemPrompt" yaml:"systemPrompt"`
}
