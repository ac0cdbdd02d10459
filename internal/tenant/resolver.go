// Package tenant resolves a tenant id to the persona its chat widget uses.
package tenant

import (
	"strings"

	"chatdesk/internal/domain"
)

// DefaultTenantID names the fallback profile.
const DefaultTenantID = "default"

// Builtin is the profile table shipped with the service. Files and parameter
// store entries override it per tenant id.
var Builtin = []domain.TenantProfile{
	{
		TenantID:    DefaultTenantID,
		DisplayName: "Kundtjänst",
		SystemPrompt: strings.Join([]string{
			"Du är en vänlig och hjälpsam kundtjänstassistent.",
			"Svara kort och tydligt på samma språk som kunden skriver på.",
			"Om du inte vet svaret, säg det och erbjud att en medarbetare återkommer.",
		}, "\n"),
	},
	{
		TenantID:    "law",
		DisplayName: "Juridisk rådgivning",
		SystemPrompt: strings.Join([]string{
			"Du är en juridisk assistent på en svensk advokatbyrå.",
			"Använd ett formellt och sakligt språk och tilltala klienten med \"ni\".",
			"Hänvisa till relevant svensk lagstiftning när det är möjligt.",
			"Ge allmän vägledning, inte bindande juridisk rådgivning, och rekommendera kontakt med en jurist i komplexa ärenden.",
		}, "\n"),
	},
}

// Resolver is an immutable tenant id -> profile table with a default.
type Resolver struct {
	profiles map[string]domain.TenantProfile
	fallback domain.TenantProfile
}

// NewResolver builds a table from Builtin followed by overrides. A profile
// with TenantID "default" replaces the fallback.
func NewResolver(overrides ...domain.TenantProfile) *Resolver {
	r := &Resolver{profiles: make(map[string]domain.TenantProfile)}
	for _, p := range append(append([]domain.TenantProfile(nil), Builtin...), overrides...) {
		id := normalize(p.TenantID)
		if id == "" || strings.TrimSpace(p.SystemPrompt) == "" {
			continue
		}
		p.TenantID = id
		if p.DisplayName == "" {
			p.DisplayName = id
		}
		if id == DefaultTenantID {
			r.fallback = p
			continue
		}
		r.profiles[id] = p
	}
	return r
}

// Resolve never fails: unknown or empty ids get the default profile.
func (r *Resolver) Resolve(tenantID string) domain.TenantProfile {
	if p, ok := r.profiles[normalize(tenantID)]; ok {
		return p
	}
	return r.fallback
}

// Known reports whether tenantID has its own profile.
func (r *Resolver) Known(tenantID string) bool {
	_, ok := r.profiles[normalize(tenantID)]
	return ok
}

// Len is the number of tenant-specific profiles.
func (r *Resolver) Len() int { return len(r.profiles) }

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
