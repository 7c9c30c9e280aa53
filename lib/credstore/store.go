// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/uia/lib/clock"
	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/lib/sealed"
	"github.com/bureau-foundation/uia/lib/secret"
	"github.com/bureau-foundation/uia/messaging"
)

// ErrNotFound is returned by Load and Delete for an account with no
// stored credentials.
var ErrNotFound = errors.New("credstore: no stored credentials")

// ErrNoIdentity is returned when a sealed record is loaded by a store
// configured without an age identity.
var ErrNoIdentity = errors.New("credstore: record is sealed and no identity is configured")

// fileSuffix marks credential records. Other files in the directory are
// ignored.
const fileSuffix = ".json"

// nameDomainKey keys the BLAKE3 hash that turns a user ID into a file
// name: ASCII "bureau-uia.credentials", zero-padded to 32 bytes.
var nameDomainKey = [32]byte{
	'b', 'u', 'r', 'e', 'a', 'u', '-', 'u', 'i', 'a', '.',
	'c', 'r', 'e', 'd', 'e', 'n', 't', 'i', 'a', 'l', 's',
}

// Config configures a Store.
type Config struct {
	// Directory holds the records. Created 0700 if missing.
	Directory string

	// Recipients are age public keys. When non-empty, Save seals
	// credentials to them.
	Recipients []string

	// Identity is the age private key used to open sealed records.
	// Borrowed; the Store never closes it.
	Identity *secret.Buffer

	// Clock stamps saved records. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Store reads and writes credential records.
type Store struct {
	directory  string
	recipients []string
	identity   *secret.Buffer
	clock      clock.Clock
	logger     *slog.Logger
}

// Entry describes one stored record without opening it.
type Entry struct {
	UserID     ref.UserID
	Homeserver string
	SavedAt    time.Time
	Sealed     bool
	Path       string
}

// record is the on-disk format. Exactly one of Credentials and Sealed is
// set.
type record struct {
	UserID      ref.UserID             `json:"user_id"`
	Homeserver  string                 `json:"homeserver"`
	SavedAt     time.Time              `json:"saved_at"`
	Credentials *messaging.Credentials `json:"credentials,omitempty"`
	Sealed      string                 `json:"sealed,omitempty"`
}

// New opens the store at config.Directory, creating it if needed.
func New(config Config) (*Store, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("credstore: directory is required")
	}
	for _, recipient := range config.Recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return nil, fmt.Errorf("credstore: recipient %q: %w", recipient, err)
		}
	}
	if err := os.MkdirAll(config.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("credstore: creating %s: %w", config.Directory, err)
	}

	storeClock := config.Clock
	if storeClock == nil {
		storeClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		directory:  config.Directory,
		recipients: append([]string(nil), config.Recipients...),
		identity:   config.Identity,
		clock:      storeClock,
		logger:     logger,
	}, nil
}

// Path returns the record path for userID.
func (s *Store) Path(userID ref.UserID) string {
	hasher, err := blake3.NewKeyed(nameDomainKey[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic(fmt.Sprintf("credstore: blake3 keyed hasher: %v", err))
	}
	hasher.Write([]byte(userID.String()))
	digest := hasher.Sum(nil)
	return filepath.Join(s.directory, hex.EncodeToString(digest[:16])+fileSuffix)
}

// Save stores credentials for homeserver, replacing any existing record
// for the same user.
func (s *Store) Save(credentials *messaging.Credentials, homeserver string) (string, error) {
	if credentials == nil {
		return "", fmt.Errorf("credstore: credentials are required")
	}
	if err := credentials.Validate(); err != nil {
		return "", fmt.Errorf("credstore: %w", err)
	}

	entry := record{
		UserID:     credentials.UserID,
		Homeserver: homeserver,
		SavedAt:    s.clock.Now().UTC(),
	}
	if len(s.recipients) > 0 {
		plaintext, err := json.Marshal(credentials)
		if err != nil {
			return "", fmt.Errorf("credstore: encoding credentials: %w", err)
		}
		ciphertext, err := sealed.Seal(plaintext, s.recipients)
		secret.Zero(plaintext)
		if err != nil {
			return "", fmt.Errorf("credstore: sealing credentials: %w", err)
		}
		entry.Sealed = string(ciphertext)
	} else {
		entry.Credentials = credentials
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("credstore: encoding record: %w", err)
	}
	path := s.Path(credentials.UserID)
	err = s.writeFile(path, data)
	secret.Zero(data)
	if err != nil {
		return "", err
	}

	s.logger.Info("credentials saved",
		"user_id", credentials.UserID,
		"path", path,
		"sealed", entry.Sealed != "",
	)
	return path, nil
}

// Load returns the stored credentials for userID.
func (s *Store) Load(userID ref.UserID) (*messaging.Credentials, error) {
	entry, err := s.readRecord(s.Path(userID))
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, fmt.Errorf("credstore: record for %s holds %s", userID, entry.UserID)
	}

	credentials := entry.Credentials
	if entry.Sealed != "" {
		if s.identity == nil {
			return nil, ErrNoIdentity
		}
		plaintext, err := sealed.Open([]byte(entry.Sealed), s.identity)
		if err != nil {
			return nil, fmt.Errorf("credstore: opening record for %s: %w", userID, err)
		}
		credentials = &messaging.Credentials{}
		err = json.Unmarshal(plaintext.Bytes(), credentials)
		plaintext.Close()
		if err != nil {
			return nil, fmt.Errorf("credstore: decoding sealed credentials for %s: %w", userID, err)
		}
	}
	if credentials == nil {
		return nil, fmt.Errorf("credstore: record for %s has no credentials", userID)
	}
	if err := credentials.Validate(); err != nil {
		return nil, fmt.Errorf("credstore: record for %s: %w", userID, err)
	}
	if credentials.UserID != userID {
		return nil, fmt.Errorf("credstore: sealed credentials for %s belong to %s", userID, credentials.UserID)
	}
	return credentials, nil
}

// Delete removes the record for userID.
func (s *Store) Delete(userID ref.UserID) error {
	path := s.Path(userID)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w for %s", ErrNotFound, userID)
		}
		return fmt.Errorf("credstore: removing %s: %w", path, err)
	}
	s.logger.Info("credentials deleted", "user_id", userID)
	return nil
}

// List returns every readable record, sorted by user ID. Unreadable files
// are logged and skipped.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.directory)
	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", s.directory, err)
	}

	var entries []Entry
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), fileSuffix) {
			continue
		}
		path := filepath.Join(s.directory, dirEntry.Name())
		entry, err := s.readRecord(path)
		if err != nil {
			s.logger.Warn("skipping unreadable credentials record", "path", path, "error", err)
			continue
		}
		entries = append(entries, Entry{
			UserID:     entry.UserID,
			Homeserver: entry.Homeserver,
			SavedAt:    entry.SavedAt,
			Sealed:     entry.Sealed != "",
			Path:       path,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UserID.String() < entries[j].UserID.String()
	})
	return entries, nil
}

func (s *Store) readRecord(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("credstore: reading %s: %w", path, err)
	}
	defer secret.Zero(data)

	var entry record
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("credstore: decoding %s: %w", path, err)
	}
	if entry.UserID.IsZero() {
		return nil, fmt.Errorf("credstore: %s has no user_id", path)
	}
	return &entry, nil
}

// writeFile atomically writes data to path with mode 0600.
func (s *Store) writeFile(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(s.directory, "credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		return fmt.Errorf("credstore: setting mode on temp file: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("credstore: writing credentials: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("credstore: syncing credentials: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("credstore: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credstore: renaming credentials to %s: %w", path, err)
	}

	success = true
	return nil
}
