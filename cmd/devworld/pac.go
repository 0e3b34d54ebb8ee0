package devworld

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/BRAVO68WEB/devworld/internal/pac"
	"github.com/BRAVO68WEB/devworld/pkg/output"
)

var pacCmd = &cobra.Command{
	Use:   "pac",
	Short: "Print the proxy policy currently served",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		script, err := fetchScript(cmd)
		if err != nil {
			return output.PrintError("Fetch policy: " + err.Error())
		}
		if out == "" {
			fmt.Print(script)
			return nil
		}
		if err := os.WriteFile(out, []byte(script), 0644); err != nil {
			return output.PrintError("Write policy: " + err.Error())
		}
		output.PrintSuccess("Policy written to " + out)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Show how the policy routes a URL",
	Long: `Evaluate the proxy policy for a URL the way a browser would. The policy is
fetched from the server unless --pac points at a local file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := fetchScript(cmd)
		if err != nil {
			return output.PrintError("Fetch policy: " + err.Error())
		}
		decision, err := pac.Evaluate(script, args[0])
		if err != nil {
			return output.PrintError("Evaluate policy: " + err.Error())
		}
		output.PrintResolution(os.Stdout, args[0], decision)
		return nil
	},
}

func init() {
	pacCmd.Flags().StringP("out", "o", "", "Write the policy to a file instead of stdout")
	resolveCmd.Flags().String("pac", "", "Evaluate this local PAC file instead of the served policy")
}

// fetchScript reads the --pac file if the command has one set, otherwise it
// downloads /proxy.pac.
func fetchScript(cmd *cobra.Command) (string, error) {
	if f := cmd.Flags().Lookup("pac"); f != nil && f.Value.String() != "" {
		data, err := os.ReadFile(f.Value.String())
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	client := newAPIClient(cfg.ServerURL, cfg.InsecureSkipVerify)
	var script string
	if _, err := client.do(cmd.Context(), http.MethodGet, "/proxy.pac", "", nil, &script); err != nil {
		return "", err
	}
	return script, nil
}
