package devworld

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/BRAVO68WEB/devworld/internal/events"
	"github.com/BRAVO68WEB/devworld/pkg/output"
)

var openCmd = &cobra.Command{
	Use:   "open <file>",
	Short: "Ask the editor session that owns a file to open it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, _ := cmd.Flags().GetInt("line")
		column, _ := cmd.Flags().GetInt("column")

		abs, err := filepath.Abs(args[0])
		if err != nil {
			return output.PrintError("Resolve path: " + err.Error())
		}
		ev := events.OpenFile{File: abs, Line: line, Column: column}
		if err := ev.Validate(); err != nil {
			return output.PrintError(err.Error())
		}

		client := newAPIClient(cfg.ServerURL, cfg.InsecureSkipVerify)
		var resp struct {
			Delivered int `json:"delivered"`
		}
		if _, err := client.do(cmd.Context(), http.MethodPost, "/api/open-file", "", ev, &resp); err != nil {
			return output.PrintError("Open file: " + err.Error())
		}
		if resp.Delivered == 0 {
			output.PrintInfo("No listeners are subscribed; the event was dropped.")
			return nil
		}
		output.PrintSuccess(fmt.Sprintf("Sent %s:%d:%d to %d listener(s)", abs, line, column, resp.Delivered))
		return nil
	},
}

func init() {
	openCmd.Flags().IntP("line", "l", 1, "Line to open at")
	openCmd.Flags().IntP("column", "c", 1, "Column to open at")
}
