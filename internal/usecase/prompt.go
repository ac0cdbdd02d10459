package usecase

import (
	"strings"

	"chatdesk/internal/domain"
)

// buildPromptMessages orders the model input as the tenant persona, the
// stored history oldest first, then the new user message. Internal notes are
// never part of history.
func buildPromptMessages(profile domain.TenantProfile, history []domain.ChatMessage, message string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: strings.TrimSpace(profile.SystemPrompt),
	})
	for _, m := range history {
		if m.Role == domain.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, m)
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: message})
}
