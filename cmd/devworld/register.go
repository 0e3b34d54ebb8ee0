package devworld

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BRAVO68WEB/devworld/internal/registration"
	"github.com/BRAVO68WEB/devworld/pkg/output"
)

var registerCmd = &cobra.Command{
	Use:   "register <protocol://host> <DIRECT|PROXY|HTTPS> [host:port]",
	Short: "Register a routing rule with the server",
	Long: `Register a routing rule. The server attributes it to the identity bound to
your token. A target without "protocol://" matches every protocol for the host.

  devworld register https://dev HTTPS localhost:12345
  devworld register http://dev DIRECT`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().String("token", "", "Registration token (or DEVWORLD_TOKEN)")
}

// splitTarget splits "https://dev" into protocol and host. A bare host has an
// empty protocol.
func splitTarget(target string) (protocol, host string) {
	if p, h, ok := strings.Cut(target, "://"); ok {
		return p, strings.TrimSuffix(h, "/")
	}
	return "", target
}

func runRegister(cmd *cobra.Command, args []string) error {
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = cfg.Token
	}
	if token == "" {
		return output.PrintError("a registration token is required (--token or DEVWORLD_TOKEN)")
	}

	protocol, host := splitTarget(args[0])
	req := registration.SetProxyRequest{
		Protocol: protocol,
		Host:     host,
		Type:     strings.ToUpper(args[1]),
	}
	if len(args) == 3 {
		req.Destination = args[2]
	}

	client := newAPIClient(cfg.ServerURL, cfg.InsecureSkipVerify)
	var reply registration.Reply
	status, err := client.do(cmd.Context(), http.MethodPost, "/api/register", token,
		registration.Message{Type: registration.TypeSetProxy, SetProxy: &req}, &reply)
	if err != nil {
		return output.PrintError("Registration failed: " + err.Error())
	}
	if !reply.OK {
		return output.PrintError(fmt.Sprintf("Registration rejected (%d): %s", status, reply.Error))
	}
	output.PrintSuccess("Registered " + reply.Key)
	return nil
}
