// Package apply holds the ways a compiled policy reaches the browser: served
// over HTTP from memory, or written to a PAC file.
package apply

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"
)

// Published keeps the latest script in memory for the /proxy.pac endpoint.
type Published struct {
	mu     sync.RWMutex
	script string
	etag   string
}

func NewPublished() *Published {
	return &Published{}
}

func (p *Published) Apply(_ context.Context, script string) error {
	sum := blake3.Sum256([]byte(script))
	p.mu.Lock()
	p.script = script
	p.etag = `"` + hex.EncodeToString(sum[:16]) + `"`
	p.mu.Unlock()
	return nil
}

// Current returns the published script and its strong ETag. Both are empty
// until the first Apply.
func (p *Published) Current() (script, etag string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.script, p.etag
}

// File writes the script to a path a browser can load as a file:// PAC URL.
type File struct {
	Path string
}

func (f File) Apply(_ context.Context, script string) error {
	if f.Path == "" {
		return errors.New("pac file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(script), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}

// Applier is the interface every target implements.
type Applier interface {
	Apply(ctx context.Context, script string) error
}

// Multi applies to every target, even after one fails, and joins the errors.
type Multi []Applier

func (m Multi) Apply(ctx context.Context, script string) error {
	var errs []error
	for _, a := range m {
		if err := a.Apply(ctx, script); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
