// Package pac compiles routing entries into a proxy auto-config script and
// evaluates such scripts.
package pac

import (
	"encoding/json"
	"strings"
)

const scriptTemplate = `function FindProxyForURL(url, host) {
  var entries = %ENTRIES%;
  var i = url.indexOf(":");
  var protocol = i < 0 ? "" : url.substring(0, i).toLowerCase();
  host = host.toLowerCase();
  var entry = entries[protocol + "://" + host];
  if (entry === undefined) {
    entry = entries["://" + host];
  }
  if (entry === undefined || entry.type === "DIRECT") {
    return "DIRECT";
  }
  return entry.type + " " + entry.destination;
}
`

// Compile renders entries as a FindProxyForURL script. The output depends
// only on the set of entries: the embedded object is keyed by canonical key
// and encoding/json sorts map keys. encoding/json also escapes <, >, &,
// U+2028 and U+2029, so no field value can break out of the literal.
func Compile(entries []Entry) string {
	data := make(map[string]Entry, len(entries))
	for _, e := range entries {
		data[e.Key()] = e
	}
	embedded, err := json.Marshal(data)
	if err != nil {
		// Entry holds only strings; Marshal cannot fail.
		embedded = []byte("{}")
	}
	return strings.Replace(scriptTemplate, "%ENTRIES%", string(embedded), 1)
}

// Lookup mirrors the compiled script's decision in Go.
func Lookup(entries []Entry, protocol, host string) string {
	protocol = strings.ToLower(protocol)
	host = strings.ToLower(host)
	var wildcard *Entry
	for i := range entries {
		e := entries[i]
		if e.Host != host {
			continue
		}
		if e.Protocol == protocol {
			return e.Decision()
		}
		if e.Protocol == "" {
			wildcard = &entries[i]
		}
	}
	if wildcard != nil {
		return wildcard.Decision()
	}
	return string(Direct)
}
