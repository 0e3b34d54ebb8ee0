package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/BRAVO68WEB/devworld/internal/pac"
)

func PrintSuccess(msg string) {
	color.Green(msg)
}

func PrintError(msg string) error {
	color.Red("❌ " + msg)
	return fmt.Errorf("%s", msg)
}

func PrintInfo(msg string) {
	color.Cyan(msg)
}

type entryRow struct {
	Key         string `json:"key" yaml:"key"`
	Protocol    string `json:"protocol" yaml:"protocol"`
	Host        string `json:"host" yaml:"host"`
	Type        string `json:"type" yaml:"type"`
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
	Owner       string `json:"ownerId" yaml:"ownerId"`
}

func rows(entries []pac.Entry) []entryRow {
	out := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryRow{
			Key:         e.Key(),
			Protocol:    e.Protocol,
			Host:        e.Host,
			Type:        string(e.Type),
			Destination: e.Destination,
			Owner:       e.OwnerID,
		})
	}
	return out
}

// PrintEntryList writes entries as a table, or as json or yaml.
func PrintEntryList(w io.Writer, entries []pac.Entry, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(rows(entries), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(rows(entries))
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "", "table":
	default:
		return fmt.Errorf("unknown output format %q (table, json, yaml)", format)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Decision", "Owner"})
	for _, r := range rows(entries) {
		decision := r.Type
		if r.Destination != "" && r.Type != string(pac.Direct) {
			decision += " " + r.Destination
		}
		table.Append([]string{r.Key, decision, r.Owner})
	}
	table.Render()
	return nil
}

// PrintResolution writes the routing decision for one URL.
func PrintResolution(w io.Writer, url, decision string) {
	fmt.Fprintf(w, "URL:       %s\n", url)
	fmt.Fprintf(w, "Decision:  %s\n", decision)
}
