package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chatdesk/internal/application"
	"chatdesk/internal/config"
	"chatdesk/internal/tenant"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Inspect tenant persona profiles",
}

var tenantsShowCmd = &cobra.Command{
	Use:   "show <tenant-id>",
	Short: "Print the profile a tenant id resolves to",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantsShow,
}

func init() {
	tenantsCmd.AddCommand(tenantsShowCmd)
}

func runTenantsShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var params tenant.ParamGetter
	if cfg.TenantProfilesParam != "" {
		ps, err := application.NewParamStore(cmd.Context())
		if err != nil {
			return err
		}
		params = ps
	}
	profiles, err := application.LoadTenants(cmd.Context(), cfg, params)
	if err != nil {
		return err
	}
	r := tenant.NewResolver(profiles...)

	id := args[0]
	if !r.Known(id) {
		fmt.Fprintf(cmd.ErrOrStderr(), "tenant %q has no profile; showing the default\n", id)
	}
	out, err := yaml.Marshal(r.Resolve(id))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
