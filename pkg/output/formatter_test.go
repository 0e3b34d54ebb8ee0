package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/BRAVO68WEB/devworld/internal/pac"
)

var sample = []pac.Entry{
	{Protocol: "https", Host: "dev", Type: pac.HTTPS, Destination: "localhost:12345", OwnerID: "ext-A"},
	{Protocol: "http", Host: "dev", Type: pac.Direct, OwnerID: "ext-B"},
}

func TestPrintEntryList_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintEntryList(&buf, sample, "table"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"https://dev", "HTTPS localhost:12345", "ext-A", "http://dev", "DIRECT"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestPrintEntryList_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintEntryList(&buf, sample, "json"); err != nil {
		t.Fatal(err)
	}
	var got []entryRow
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Key != "https://dev" || got[1].Destination != "" {
		t.Errorf("json = %+v", got)
	}
}

func TestPrintEntryList_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintEntryList(&buf, sample, "yaml"); err != nil {
		t.Fatal(err)
	}
	var got []map[string]string
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0]["ownerId"] != "ext-A" || got[0]["key"] != "https://dev" {
		t.Errorf("yaml = %v", got)
	}
}

func TestPrintEntryList_UnknownFormat(t *testing.T) {
	if err := PrintEntryList(&bytes.Buffer{}, sample, "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
