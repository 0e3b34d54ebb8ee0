package pac

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dop251/goja"
)

var errNoFindProxy = errors.New("script does not define FindProxyForURL")

// evalTimeout bounds a single evaluation; PAC scripts must not loop forever.
const evalTimeout = 2 * time.Second

// Evaluate runs script's FindProxyForURL for rawURL the way a browser would,
// passing the URL's hostname as host.
func Evaluate(script, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	vm := goja.New()
	timer := time.AfterFunc(evalTimeout, func() {
		vm.Interrupt("evaluation timed out")
	})
	defer timer.Stop()

	if _, err := vm.RunString(script); err != nil {
		return "", fmt.Errorf("load script: %w", err)
	}
	fn, ok := goja.AssertFunction(vm.Get("FindProxyForURL"))
	if !ok {
		return "", errNoFindProxy
	}
	result, err := fn(goja.Undefined(), vm.ToValue(rawURL), vm.ToValue(u.Hostname()))
	if err != nil {
		return "", fmt.Errorf("FindProxyForURL: %w", err)
	}
	return result.String(), nil
}
