package devworld

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BRAVO68WEB/devworld/internal/bridge"
	"github.com/BRAVO68WEB/devworld/internal/events"
	"github.com/BRAVO68WEB/devworld/internal/sessions"
	"github.com/BRAVO68WEB/devworld/pkg/output"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Follow the open-file event stream and print where each file would open",
	Long: `Subscribe to the open-file event stream and print every event with the
workspace alias it belongs to. Exits non-zero if the stream reconnects too
quickly (see max_runs_per_sec).`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().String("url", "", "Event stream URL (default <server_url>/api/listen-open-file)")
	bridgeCmd.Flags().Float64("max-runs-per-sec", 0, "Reconnect rate limit (default from config)")
	bridgeCmd.Flags().Duration("retry-delay", 0, "Pause before each reconnect")
}

func runBridge(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		url = cfg.EventStreamURL()
	}
	rate, _ := cmd.Flags().GetFloat64("max-runs-per-sec")
	if rate <= 0 {
		rate = cfg.MaxRunsPerSec
	}
	delay, _ := cmd.Flags().GetDuration("retry-delay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cfg.WorkspaceRoot
	handler := func(_ context.Context, ev events.OpenFile) error {
		alias, ok := sessions.AliasFor(root, ev)
		if !ok {
			fmt.Printf("%s:%d:%d (outside %s)\n", ev.File, ev.Line, ev.Column, root)
			return nil
		}
		fmt.Printf("%s:%d:%d -> %s\n", ev.File, ev.Line, ev.Column, alias)
		return nil
	}

	output.PrintInfo("Following " + url)
	b := bridge.New(bridge.Config{
		URL:                url,
		MaxRunsPerSec:      rate,
		RetryDelay:         delay,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Logger:             slog.Default().With("component", "bridge"),
	}, handler)
	err := b.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return output.PrintError(err.Error())
}
