package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"chatdesk/internal/domain"
)

// ParamGetter reads a single parameter; paramstore.Client satisfies it.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// profileFile is the on-disk shape. JSON is valid YAML, so parameter store
// entries may use either.
type profileFile struct {
	Default *domain.TenantProfile  `yaml:"default"`
	Tenants []domain.TenantProfile `yaml:"tenants"`
}

// Parse decodes a profile document into a flat list; the default entry, if
// present, is returned with TenantID "default".
func Parse(data []byte) ([]domain.TenantProfile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tenant: decode profiles: %w", err)
	}
	var out []domain.TenantProfile
	if f.Default != nil {
		d := *f.Default
		d.TenantID = DefaultTenantID
		out = append(out, d)
	}
	for i, p := range f.Tenants {
		if strings.TrimSpace(p.TenantID) == "" {
			return nil, fmt.Errorf("tenant: profile %d has no tenantId", i)
		}
		if strings.TrimSpace(p.SystemPrompt) == "" {
			return nil, fmt.Errorf("tenant: profile %q has no systemPrompt", p.TenantID)
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadFile reads profiles from a YAML file.
func LoadFile(path string) ([]domain.TenantProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tenant: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadParam reads profiles from a parameter store entry.
func LoadParam(ctx context.Context, getter ParamGetter, name string) ([]domain.TenantProfile, error) {
	if getter == nil {
		return nil, errors.New("tenant: param getter must not be nil")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("tenant: load %s: %w", name, err)
	}
	return Parse([]byte(raw))
}
