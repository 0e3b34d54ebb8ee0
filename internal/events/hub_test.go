package events

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenFile_Validate(t *testing.T) {
	tests := []struct {
		ev      OpenFile
		wantErr bool
	}{
		{OpenFile{File: "/work/foo/x.ts", Line: 3, Column: 1}, false},
		{OpenFile{File: "/work/foo/x.ts"}, false},
		{OpenFile{}, true},
		{OpenFile{File: "relative/x.ts"}, true},
		{OpenFile{File: "/x", Line: -1}, true},
	}
	for _, tt := range tests {
		err := tt.ev.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tt.ev, err, tt.wantErr)
		}
	}
}

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub(quietLogger())
	id, ch := h.Subscribe()
	if h.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d", h.Subscribers())
	}
	if n := h.Publish(OpenFile{File: "/a"}); n != 1 {
		t.Errorf("Publish() = %d, want 1", n)
	}
	if got := <-ch; got.File != "/a" {
		t.Errorf("got %+v", got)
	}
	h.Unsubscribe(id)
	if n := h.Publish(OpenFile{File: "/b"}); n != 0 {
		t.Errorf("Publish() after unsubscribe = %d", n)
	}
}

func TestHub_Publish_DropsForSlowSubscriber(t *testing.T) {
	h := NewHub(quietLogger())
	_, _ = h.Subscribe()
	for i := 0; i < subscriberBuffer; i++ {
		h.Publish(OpenFile{File: "/a"})
	}
	if n := h.Publish(OpenFile{File: "/overflow"}); n != 0 {
		t.Errorf("Publish() to full subscriber = %d, want 0", n)
	}
}

func TestHub_ServeSSE(t *testing.T) {
	h := NewHub(quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(h.ServeSSE))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); line != ": open\n" {
		t.Fatalf("first line = %q", line)
	}
	_, _ = reader.ReadString('\n')

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Publish(OpenFile{File: "/work/foo/x.ts", Line: 4, Column: 2})

	event, _ := reader.ReadString('\n')
	data, _ := reader.ReadString('\n')
	if event != "event: message\n" {
		t.Errorf("event line = %q", event)
	}
	if data != "data: {\"file\":\"/work/foo/x.ts\",\"line\":4,\"column\":2}\n" {
		t.Errorf("data line = %q", data)
	}
}

func TestHub_ServePublish(t *testing.T) {
	h := NewHub(quietLogger())
	_, ch := h.Subscribe()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/open-file", strings.NewReader(`{"file":"/work/foo/x.ts","line":1,"column":1}`))
	h.ServePublish(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := <-ch; got.File != "/work/foo/x.ts" {
		t.Errorf("got %+v", got)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/open-file", strings.NewReader(`{"file":"x.ts"}`))
	h.ServePublish(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/open-file", strings.NewReader(`{`))
	h.ServePublish(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHub_ServePublish_BodyTooLarge(t *testing.T) {
	h := NewHub(quietLogger())
	_, ch := h.Subscribe()

	body := `{"file":"/work/foo/` + strings.Repeat("a", maxPublishBody) + `.ts"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/open-file", strings.NewReader(body))
	h.ServePublish(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	select {
	case ev := <-ch:
		t.Errorf("oversized event delivered: %q", ev.File[:20])
	default:
	}
}
