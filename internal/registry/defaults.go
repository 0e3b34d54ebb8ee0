package registry

import (
	"context"

	"github.com/BRAVO68WEB/devworld/internal/pac"
)

// DefaultOwner attributes entries devworld installs itself.
const DefaultOwner = "devworld"

// DefaultEntries routes https://<hostname> for every hostname to upstream
// over HTTPS.
func DefaultEntries(hostnames []string, upstream string) []pac.Entry {
	entries := make([]pac.Entry, 0, len(hostnames))
	for _, h := range hostnames {
		entries = append(entries, pac.Entry{
			Protocol:    "https",
			Host:        h,
			Type:        pac.HTTPS,
			Destination: upstream,
			OwnerID:     DefaultOwner,
		})
	}
	return entries
}

// Seed adds the default entries when the registry is empty and reports how
// many were added. Each entry is persisted like any other registration.
func (r *Registry) Seed(ctx context.Context, hostnames []string, upstream string) (int, error) {
	if r.Len() > 0 {
		return 0, nil
	}
	added := 0
	for _, e := range DefaultEntries(hostnames, upstream) {
		if err := r.Add(ctx, e); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
