package triage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"chatdesk/internal/domain"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewRego(ctx, "")
	require.NoError(t, err)

	cases := []struct {
		msg  string
		want domain.Priority
	}{
		{"Hej, vad kostar en konsultation?", domain.PriorityNormal},
		{"Det är AKUT, min son är häktad", domain.PriorityHigh},
		{"Jag har blivit delgiven stämning", domain.PriorityHigh},
		{"please answer asap", domain.PriorityHigh},
		{"", domain.PriorityNormal},
	}
	for _, tc := range cases {
		got, err := e.Classify(ctx, "law", tc.msg)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "msg=%q", tc.msg)
	}
}

const tenantPolicy = `
package triage

default priority = "normal"

priority = "low" {
	input.tenant_id == "shop"
}
`

func TestCustomPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.rego")
	require.NoError(t, os.WriteFile(path, []byte(tenantPolicy), 0o600))

	e, err := LoadRego(context.Background(), path)
	require.NoError(t, err)

	got, err := e.Classify(context.Background(), "shop", "akut")
	require.NoError(t, err)
	require.Equal(t, domain.PriorityLow, got)

	got, err = e.Classify(context.Background(), "law", "akut")
	require.NoError(t, err)
	require.Equal(t, domain.PriorityNormal, got)
}

func TestLoadRego_Errors(t *testing.T) {
	_, err := LoadRego(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	require.Error(t, err)

	_, err = NewRego(context.Background(), "package triage\npriority = {")
	require.Error(t, err)
}

func TestClassify_RejectsUnknownPriority(t *testing.T) {
	e, err := NewRego(context.Background(), "package triage\npriority = \"critical\"\n")
	require.NoError(t, err)
	_, err = e.Classify(context.Background(), "law", "x")
	require.ErrorContains(t, err, "unknown priority")
}

func TestClassify_NoRuleMeansNormal(t *testing.T) {
	e, err := NewRego(context.Background(), "package triage\nother = 1\n")
	require.NoError(t, err)
	got, err := e.Classify(context.Background(), "law", "x")
	require.NoError(t, err)
	require.Equal(t, domain.PriorityNormal, got)
}
