package devworld

import (
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/BRAVO68WEB/devworld/internal/server"
	"github.com/BRAVO68WEB/devworld/pkg/output"
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Inspect and remove routing entries (admin)",
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routing entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return handleEntriesList(cmd, format)
	},
}

var entriesRemoveCmd = &cobra.Command{
	Use:     "rm <protocol://host>",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove a routing entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleEntriesRemove(cmd, args[0])
	},
}

func init() {
	entriesCmd.PersistentFlags().String("admin-token", "", "Admin token (or DEVWORLD_ADMIN_TOKEN)")
	entriesListCmd.Flags().StringP("format", "f", "table", "Output format (table, json, yaml)")

	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesRemoveCmd)
}

func adminToken(cmd *cobra.Command) (string, error) {
	token, _ := cmd.Flags().GetString("admin-token")
	if token == "" {
		token = cfg.AdminToken
	}
	if token == "" {
		return "", output.PrintError("admin token is required (--admin-token or DEVWORLD_ADMIN_TOKEN)")
	}
	return token, nil
}

func handleEntriesList(cmd *cobra.Command, format string) error {
	token, err := adminToken(cmd)
	if err != nil {
		return err
	}
	client := newAPIClient(cfg.ServerURL, cfg.InsecureSkipVerify)
	var list server.EntriesResponse
	status, err := client.do(cmd.Context(), http.MethodGet, "/admin/entries", token, nil, &list)
	if err != nil {
		return output.PrintError("List entries: " + err.Error())
	}
	if status != http.StatusOK {
		return output.PrintError("List entries: " + http.StatusText(status))
	}
	if len(list.Entries) == 0 && (format == "" || format == "table") {
		output.PrintInfo("No entries.")
		return nil
	}
	return output.PrintEntryList(os.Stdout, list.Entries, format)
}

func handleEntriesRemove(cmd *cobra.Command, key string) error {
	token, err := adminToken(cmd)
	if err != nil {
		return err
	}
	protocol, host := splitTarget(key)
	key = protocol + "://" + host

	client := newAPIClient(cfg.ServerURL, cfg.InsecureSkipVerify)
	if _, err := client.do(cmd.Context(), http.MethodDelete, "/admin/entries/"+url.PathEscape(key), token, nil, nil); err != nil {
		return output.PrintError("Remove entry: " + err.Error())
	}
	output.PrintSuccess("Removed " + key)
	return nil
}
