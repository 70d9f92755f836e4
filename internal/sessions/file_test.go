package sessions

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := NewFileStore(dir, nil, nil)
	session, err := store.GetOrCreate(ctx, "telegram:12345")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(session.Messages) != 0 {
		t.Fatalf("fresh session has %d messages", len(session.Messages))
	}

	session.AddMessage("user", "hello")
	session.AddMessage("assistant", "hi there")
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A new store instance must reload the transcript from disk.
	reloaded, err := NewFileStore(dir, nil, nil).GetOrCreate(ctx, "telegram:12345")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Messages) != 2 {
		t.Fatalf("reloaded %d messages, want 2", len(reloaded.Messages))
	}
	if reloaded.Messages[0].Role != "user" || reloaded.Messages[0].Content != "hello" {
		t.Fatalf("first message = %+v", reloaded.Messages[0])
	}
	if reloaded.Messages[1].Role != "assistant" || reloaded.Messages[1].Content != "hi there" {
		t.Fatalf("second message = %+v", reloaded.Messages[1])
	}
}

func TestFileStoreSanitizesKey(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil, nil)
	ctx := context.Background()

	session, _ := store.GetOrCreate(ctx, "cli:direct")
	session.AddMessage("user", "x")
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "cli_direct.json")); err != nil {
		t.Fatalf("expected sanitized transcript file: %v", err)
	}
}

func TestFileStoreGetNotFound(t *testing.T) {
	store := NewFileStore(t.TempDir(), nil, nil)
	if _, err := store.Get(context.Background(), "missing:key"); err != ErrNotFound {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestFileStoreListAndDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil, nil)
	ctx := context.Background()

	for _, key := range []string{"cli:direct", "telegram:42"} {
		session, _ := store.GetOrCreate(ctx, key)
		session.AddMessage("user", "x")
		if err := store.Save(ctx, session); err != nil {
			t.Fatalf("Save %s: %v", key, err)
		}
	}

	keys, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"cli:direct", "telegram:42"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("List = %v, want %v", keys, want)
	}

	if err := store.Delete(ctx, "cli:direct"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "cli:direct"); err != ErrNotFound {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}

	keys, _ = store.List(ctx)
	if want := []string{"telegram:42"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("List after delete = %v, want %v", keys, want)
	}
}

func TestFileStoreListEmptyDir(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "never-created"), nil, nil)
	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("List = %v, want empty", keys)
	}
}

func TestFileStoreCorruptTranscript(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cli_direct.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewFileStore(dir, nil, nil)
	if _, err := store.GetOrCreate(context.Background(), "cli:direct"); err == nil {
		t.Fatal("GetOrCreate on corrupt transcript succeeded")
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := map[string]string{
		"cli:direct":       "cli_direct",
		"telegram:42":      "telegram_42",
		"a/b\\c":           "a_b_c",
		"":                 "session",
		"already-safe.1":   "already-safe.1",
		"spaces and more!": "spaces_and_more_",
	}
	for in, want := range cases {
		if got := sanitizeKey(in); got != want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}
