package devworld

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print devworld version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Println(rootCmd.Version)
		return nil
	},
}
