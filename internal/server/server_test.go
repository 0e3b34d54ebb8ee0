package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/BRAVO68WEB/devworld/internal/apply"
	"github.com/BRAVO68WEB/devworld/internal/bridge"
	"github.com/BRAVO68WEB/devworld/internal/events"
	"github.com/BRAVO68WEB/devworld/internal/pac"
	"github.com/BRAVO68WEB/devworld/internal/registration"
	"github.com/BRAVO68WEB/devworld/internal/registry"
)

const (
	testCallerToken = "ext-token"
	testAdminToken  = "admin-token"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *registry.Registry, *httptest.Server) {
	t.Helper()
	published := apply.NewPublished()
	reg := registry.New(nil, published, quietLogger())
	if err := reg.Hydrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, err := New(Config{
		Callers:    map[string]string{testCallerToken: "ext-A"},
		AdminToken: testAdminToken,
		Hostnames:  []string{"dev", "d"},
		Version:    "test",
	}, reg, published, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, reg, srv
}

func register(t *testing.T, srv *httptest.Server, token string, body string) (*http.Response, registration.Reply) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, srv.URL+pathRegister, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var reply registration.Reply
	_ = json.NewDecoder(resp.Body).Decode(&reply)
	return resp, reply
}

const devBody = `{"type":"setProxy","setProxy":{"protocol":"https","host":"dev","type":"HTTPS","destination":"localhost:12345"}}`

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, nil, nil, nil); err == nil {
		t.Error("expected error without registry")
	}
	published := apply.NewPublished()
	reg := registry.New(nil, published, nil)
	if _, err := New(Config{TLSCertFile: "cert.pem"}, reg, published, nil); err == nil {
		t.Error("expected error for cert without key")
	}
}

func TestHealthz(t *testing.T) {
	_, _, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var h HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || h.Status != "ok" {
		t.Errorf("health = %d %+v", resp.StatusCode, h)
	}
}

func TestRegister_Unauthorized(t *testing.T) {
	_, reg, srv := newTestServer(t)
	for _, token := range []string{"", "wrong-token"} {
		resp, reply := register(t, srv, token, devBody)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, resp.StatusCode)
		}
		if reply.OK || reply.Error != registration.ErrIdentity.Error() {
			t.Errorf("token %q: reply = %+v", token, reply)
		}
	}
	if reg.Len() != 0 {
		t.Errorf("registry mutated: Len() = %d", reg.Len())
	}
}

func TestRegister_BadRequests(t *testing.T) {
	_, reg, srv := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid JSON", `not json`, http.StatusBadRequest},
		{"unknown type", `{"type":"deleteProxy","setProxy":{}}`, http.StatusUnprocessableEntity},
		{"missing payload", `{"type":"setProxy"}`, http.StatusBadRequest},
		{"missing destination", `{"type":"setProxy","setProxy":{"protocol":"https","host":"dev","type":"PROXY"}}`, http.StatusBadRequest},
		{"host with path", `{"type":"setProxy","setProxy":{"protocol":"https","host":"dev/x","type":"DIRECT"}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, reply := register(t, srv, testCallerToken, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if reply.OK || reply.Error == "" || reply.Type != registration.TypeSetProxyResponse {
				t.Errorf("reply = %+v", reply)
			}
		})
	}
	if reg.Len() != 0 {
		t.Errorf("registry mutated: Len() = %d", reg.Len())
	}
}

func TestRegister_IdentityFromTokenOnly(t *testing.T) {
	_, reg, srv := newTestServer(t)
	body := `{"type":"setProxy","setProxy":{"protocol":"https","host":"dev","type":"HTTPS","destination":"localhost:12345","ownerId":"mallory"}}`
	resp, reply := register(t, srv, testCallerToken, body)
	if resp.StatusCode != http.StatusOK || !reply.OK || reply.Key != "https://dev" {
		t.Fatalf("status %d reply %+v", resp.StatusCode, reply)
	}
	e, _ := reg.Get("https://dev")
	if e.OwnerID != "ext-A" {
		t.Errorf("OwnerID = %q, want ext-A", e.OwnerID)
	}
}

func TestPAC_ETag(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/proxy.pac")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != pacContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("no ETag")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/proxy.pac", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("conditional status = %d, want 304", resp.StatusCode)
	}

	register(t, srv, testCallerToken, devBody)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status after change = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("ETag") == etag {
		t.Error("ETag unchanged after registration")
	}
}

func TestPAC_NotPublished(t *testing.T) {
	rec := httptest.NewRecorder()
	PACHandler(apply.NewPublished()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy.pac", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`*`, true},
		{`"x"`, false},
		{``, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, `"abc"`); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

// A registration over HTTP ends up in the served script, and the script
// routes https://dev through the upstream while http://dev stays direct.
func TestEndToEnd_RegisterThenResolve(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, reply := register(t, srv, testCallerToken, devBody)
	if resp.StatusCode != http.StatusOK || !reply.OK {
		t.Fatalf("register: %d %+v", resp.StatusCode, reply)
	}

	resp, err := http.Get(srv.URL + "/proxy.pac")
	if err != nil {
		t.Fatal(err)
	}
	script, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	for _, tt := range []struct{ url, want string }{
		{"https://dev/", "HTTPS localhost:12345"},
		{"http://dev/", "DIRECT"},
		{"https://example.com/", "DIRECT"},
	} {
		got, err := pac.Evaluate(string(script), tt.url)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("FindProxyForURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func adminRequest(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestAdmin_Unauthorized(t *testing.T) {
	_, _, srv := newTestServer(t)
	for _, token := range []string{"", testCallerToken} {
		resp := adminRequest(t, http.MethodGet, srv.URL+"/admin/entries", token)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, resp.StatusCode)
		}
	}
}

func TestAdmin_ListAndRemove(t *testing.T) {
	_, reg, srv := newTestServer(t)
	register(t, srv, testCallerToken, devBody)

	resp := adminRequest(t, http.MethodGet, srv.URL+"/admin/entries", testAdminToken)
	var list EntriesResponse
	_ = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Entries) != 1 || list.Entries[0].Key() != "https://dev" {
		t.Fatalf("entries = %+v", list.Entries)
	}

	path := srv.URL + "/admin/entries/" + url.PathEscape("https://dev")
	resp = adminRequest(t, http.MethodDelete, path, testAdminToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after delete", reg.Len())
	}

	resp = adminRequest(t, http.MethodDelete, path, testAdminToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestAdmin_Info(t *testing.T) {
	_, _, srv := newTestServer(t)
	resp := adminRequest(t, http.MethodGet, srv.URL+"/admin/info", testAdminToken)
	defer resp.Body.Close()
	var info InfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Version != "test" || len(info.Hostnames) != 2 || info.ETag == "" {
		t.Errorf("info = %+v", info)
	}
}

// The bridge consumes the server's own event stream.
func TestOpenFile_ReachesBridge(t *testing.T) {
	s, _, srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan events.OpenFile, 1)
	b := bridge.New(bridge.Config{URL: srv.URL + "/api/listen-open-file", Logger: quietLogger()},
		func(_ context.Context, ev events.OpenFile) error {
			got <- ev
			return nil
		})
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Events().Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := http.Post(srv.URL+"/api/open-file", "application/json",
		bytes.NewReader([]byte(`{"file":"/work/foo/main.go","line":7,"column":3}`)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	select {
	case ev := <-got:
		if ev.File != "/work/foo/main.go" || ev.Line != 7 || ev.Column != 3 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() = %v", err)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	published := apply.NewPublished()
	reg := registry.New(nil, published, quietLogger())
	_ = reg.Hydrate(context.Background())
	s, err := New(Config{}, reg, published, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestRun_OnListenBeforeServing(t *testing.T) {
	published := apply.NewPublished()
	reg := registry.New(nil, published, quietLogger())
	_ = reg.Hydrate(context.Background())
	addrs := make(chan net.Addr, 1)
	s, err := New(Config{
		ListenAddr: "127.0.0.1:0",
		OnListen:   func(addr net.Addr) { addrs <- addr },
	}, reg, published, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var addr net.Addr
	select {
	case addr = <-addrs:
	case err := <-done:
		t.Fatalf("Run() = %v before listening", err)
	case <-time.After(5 * time.Second):
		t.Fatal("OnListen not called")
	}
	resp, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_ListenError(t *testing.T) {
	published := apply.NewPublished()
	reg := registry.New(nil, published, quietLogger())
	s, err := New(Config{ListenAddr: "127.0.0.1:-1"}, reg, published, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("Run() = nil, want listen error")
	}
}
