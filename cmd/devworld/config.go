package devworld

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BRAVO68WEB/devworld/internal/config"
	"github.com/BRAVO68WEB/devworld/pkg/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show devworld configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleConfig()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := config.ConfigPath()
		if _, err := os.Stat(path); err == nil && !force {
			return output.PrintError(path + " already exists (use --force to overwrite)")
		}
		if err := config.SaveTo(path, cfg); err != nil {
			return output.PrintError("Write config: " + err.Error())
		}
		output.PrintSuccess("Wrote " + path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
}

func handleConfig() error {
	output.PrintInfo("devworld configuration")
	fmt.Println()
	fmt.Printf("  Config dir:      %s\n", config.GetConfigDir())
	fmt.Printf("  Server URL:      %s\n", cfg.ServerURL)
	fmt.Printf("  Listen addr:     %s\n", cfg.ListenAddr)
	fmt.Printf("  Token:           %s\n", maskToken(cfg.Token))
	fmt.Printf("  Admin token:     %s\n", maskToken(cfg.AdminToken))
	fmt.Printf("  Event stream:    %s\n", cfg.EventStreamURL())
	fmt.Printf("  Workspace root:  %s\n", cfg.WorkspaceRoot)
	fmt.Printf("  Hostnames:       %s\n", strings.Join(cfg.Hostnames, ", "))
	fmt.Printf("  Upstream:        %s\n", cfg.Upstream)
	fmt.Printf("  Max runs/sec:    %v\n", cfg.MaxRunsPerSec)
	switch cfg.Store {
	case config.StoreRedis:
		fmt.Printf("  Store:           redis %s\n", cfg.RedisAddr)
	default:
		fmt.Printf("  Store:           file %s\n", cfg.EffectiveDataDir())
	}
	if cfg.PACFile != "" {
		fmt.Printf("  PAC file:        %s\n", cfg.PACFile)
	}
	identities := make([]string, 0, len(cfg.Callers))
	for _, id := range cfg.Callers {
		identities = append(identities, id)
	}
	sort.Strings(identities)
	fmt.Printf("  Callers:         %d %v\n", len(identities), identities)
	return nil
}

func maskToken(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
