// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/uia/lib/clock"
	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/lib/sealed"
	"github.com/bureau-foundation/uia/messaging"
)

func testCredentials(t *testing.T, raw string) *messaging.Credentials {
	t.Helper()
	userID, err := ref.ParseUserID(raw)
	if err != nil {
		t.Fatalf("ParseUserID(%q): %v", raw, err)
	}
	return &messaging.Credentials{
		UserID:      userID,
		AccessToken: "syt_" + userID.Localpart(),
		DeviceID:    "DEVICE",
	}
}

func newStore(t *testing.T, config Config) *Store {
	t.Helper()
	if config.Directory == "" {
		config.Directory = filepath.Join(t.TempDir(), "credentials")
	}
	if config.Clock == nil {
		config.Clock = clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	}
	store, err := New(config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store
}

func TestSaveLoadPlain(t *testing.T) {
	store := newStore(t, Config{})
	credentials := testCredentials(t, "@alice:example.org")

	path, err := store.Save(credentials, "https://matrix.example.org")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("record mode = %o, want 600", mode)
	}
	if strings.Contains(filepath.Base(path), "alice") {
		t.Errorf("file name %s leaks the user ID", filepath.Base(path))
	}

	loaded, err := store.Load(credentials.UserID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.AccessToken != credentials.AccessToken || loaded.DeviceID != "DEVICE" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestSaveLoadSealed(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	defer keypair.Close()

	directory := filepath.Join(t.TempDir(), "credentials")
	writer := newStore(t, Config{Directory: directory, Recipients: []string{keypair.PublicKey}})
	credentials := testCredentials(t, "@bob:example.org")
	path, err := writer.Save(credentials, "https://matrix.example.org")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	if strings.Contains(string(data), "syt_bob") {
		t.Error("sealed record contains the access token in clear")
	}
	if !strings.Contains(string(data), "@bob:example.org") {
		t.Error("sealed record does not carry the user ID in clear")
	}

	if _, err := writer.Load(credentials.UserID); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("Load without identity = %v, want ErrNoIdentity", err)
	}

	reader := newStore(t, Config{Directory: directory, Identity: keypair.PrivateKey})
	loaded, err := reader.Load(credentials.UserID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.AccessToken != "syt_bob" {
		t.Errorf("AccessToken = %q", loaded.AccessToken)
	}
}

func TestListAndDelete(t *testing.T) {
	store := newStore(t, Config{})
	for _, raw := range []string{"@carol:example.org", "@alice:example.org"} {
		if _, err := store.Save(testCredentials(t, raw), "https://hs"); err != nil {
			t.Fatalf("Save(%s) failed: %v", raw, err)
		}
	}
	// Stray files are ignored or skipped.
	os.WriteFile(filepath.Join(store.directory, "notes.txt"), []byte("x"), 0o600)
	os.WriteFile(filepath.Join(store.directory, "broken.json"), []byte("{"), 0o600)

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].UserID.String() != "@alice:example.org" || entries[1].UserID.String() != "@carol:example.org" {
		t.Errorf("entries not sorted: %v, %v", entries[0].UserID, entries[1].UserID)
	}
	if entries[0].Homeserver != "https://hs" || entries[0].Sealed {
		t.Errorf("entry = %+v", entries[0])
	}
	if want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC); !entries[0].SavedAt.Equal(want) {
		t.Errorf("SavedAt = %v, want %v", entries[0].SavedAt, want)
	}

	if err := store.Delete(entries[0].UserID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(entries[0].UserID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(entries[0].UserID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestSaveReplaces(t *testing.T) {
	store := newStore(t, Config{})
	credentials := testCredentials(t, "@alice:example.org")
	if _, err := store.Save(credentials, "https://hs"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	credentials.AccessToken = "syt_rotated"
	if _, err := store.Save(credentials, "https://hs"); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	loaded, err := store.Load(credentials.UserID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.AccessToken != "syt_rotated" {
		t.Errorf("AccessToken = %q, want the replacement", loaded.AccessToken)
	}
	files, _ := filepath.Glob(filepath.Join(store.directory, "*"))
	if len(files) != 1 {
		t.Errorf("directory holds %d files, want 1: %v", len(files), files)
	}
}

func TestNewAndSaveErrors(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New accepted an empty directory")
	}
	if _, err := New(Config{Directory: t.TempDir(), Recipients: []string{"age1bogus"}}); err == nil {
		t.Error("New accepted an invalid recipient")
	}

	store := newStore(t, Config{})
	if _, err := store.Save(nil, "https://hs"); err == nil {
		t.Error("Save accepted nil credentials")
	}
	incomplete := testCredentials(t, "@alice:example.org")
	incomplete.AccessToken = ""
	if _, err := store.Save(incomplete, "https://hs"); err == nil {
		t.Error("Save accepted credentials without an access token")
	}
}
