package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/BRAVO68WEB/devworld/internal/pac"
)

var sample = map[string]pac.Entry{
	"https://dev": {Protocol: "https", Host: "dev", Type: pac.HTTPS, Destination: "localhost:12345", OwnerID: "ext-A"},
	"://d":        {Host: "d", Type: pac.Proxy, Destination: "localhost:8080", OwnerID: "ext-B"},
	"http://off":  {Protocol: "http", Host: "off", Type: pac.Direct, OwnerID: "ext-C"},
}

func TestFile_Load_NoFile(t *testing.T) {
	f := NewFile(t.TempDir())
	if _, err := os.Stat(f.Path()); err == nil {
		t.Fatal("file should not exist yet")
	}
	got, err := f.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Load() = %v, want empty map", got)
	}
}

func TestFile_SaveLoad_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if err := NewFile(dir).Save(ctx, sample); err != nil {
		t.Fatal(err)
	}
	got, err := NewFile(dir).Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, sample) {
		t.Errorf("Load() = %v, want %v", got, sample)
	}
}

func TestFile_Save_Overwrites(t *testing.T) {
	f := NewFile(t.TempDir())
	ctx := context.Background()
	_ = f.Save(ctx, sample)
	one := map[string]pac.Entry{"https://dev": sample["https://dev"]}
	if err := f.Save(ctx, one); err != nil {
		t.Fatal(err)
	}
	got, _ := f.Load(ctx)
	if len(got) != 1 {
		t.Errorf("Load() = %v, want single entry", got)
	}
	if _, err := os.Stat(f.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestFile_Load_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, EntriesFile), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(dir).Load(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestFile_Save_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if err := NewFile(dir).Save(context.Background(), sample); err != nil {
		t.Fatal(err)
	}
}

func TestRedis_Roundtrip(t *testing.T) {
	addr := os.Getenv("DEVWORLD_TEST_REDIS")
	if addr == "" {
		t.Skip("DEVWORLD_TEST_REDIS not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, "", "", "devworld:test:"+t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := r.Save(ctx, sample); err != nil {
		t.Fatal(err)
	}
	got, err := r.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, sample) {
		t.Errorf("Load() = %v, want %v", got, sample)
	}
	if err := r.Save(ctx, map[string]pac.Entry{}); err != nil {
		t.Fatal(err)
	}
	got, _ = r.Load(ctx)
	if len(got) != 0 {
		t.Errorf("Load() after empty save = %v", got)
	}
}

func TestRedis_Load_MissingHash(t *testing.T) {
	addr := os.Getenv("DEVWORLD_TEST_REDIS")
	if addr == "" {
		t.Skip("DEVWORLD_TEST_REDIS not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, "", "", "devworld:test:missing:"+t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for a missing hash", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Load() = %v, want empty map", got)
	}
}
