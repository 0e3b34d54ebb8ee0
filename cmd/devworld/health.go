package devworld

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/BRAVO68WEB/devworld/internal/server"
	"github.com/BRAVO68WEB/devworld/pkg/output"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check configuration and server connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleHealth(cmd)
	},
}

func handleHealth(cmd *cobra.Command) error {
	if err := cfg.Validate(); err != nil {
		return output.PrintError("Invalid config: " + err.Error())
	}
	if cfg.ServerURL == "" {
		return output.PrintError("DEVWORLD_SERVER (or server_url) must be set")
	}

	client := newAPIClient(cfg.ServerURL, cfg.InsecureSkipVerify)
	var h server.HealthResponse
	if _, err := client.do(cmd.Context(), http.MethodGet, "/healthz", "", nil, &h); err != nil {
		return output.PrintError("Cannot reach server: " + err.Error())
	}
	if h.Status != "ok" {
		return output.PrintError("Server unhealthy: " + h.Status)
	}
	output.PrintSuccess(fmt.Sprintf("Config OK and server reachable (%d entries)", h.Entries))
	return nil
}
