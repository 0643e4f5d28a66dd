package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zalando/go-keyring"
)

// VerifierKey is the only key the core writes to ScopedStorage.
const VerifierKey = "code_verifier"

// ScopedStorage bridges the verifier across the redirect round trip.
type ScopedStorage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryStorage keeps values for the lifetime of the process.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value
	return nil
}

func (s *MemoryStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// DefaultFileStorageMaxAge bounds how long a pending login survives on disk.
const DefaultFileStorageMaxAge = 10 * time.Minute

type fileEntry struct {
	Value   string    `json:"value"`
	Created time.Time `json:"created"`
}

type fileContents struct {
	Entries map[string]fileEntry `json:"entries"`
}

// FileStorage persists values in a 0600 JSON file so a login started by one
// invocation can be completed by the next. Entries older than MaxAge read as absent.
type FileStorage struct {
	Path   string
	MaxAge time.Duration
	Now    func() time.Time

	mu sync.Mutex
}

func (s *FileStorage) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *FileStorage) maxAge() time.Duration {
	if s.MaxAge > 0 {
		return s.MaxAge
	}
	return DefaultFileStorageMaxAge
}

func (s *FileStorage) load() (*fileContents, error) {
	content, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileContents{Entries: map[string]fileEntry{}}, nil
		}
		return nil, err
	}
	var contents fileContents
	if err := json.Unmarshal(content, &contents); err != nil {
		return nil, fmt.Errorf("failed to parse storage file: %w", err)
	}
	if contents.Entries == nil {
		contents.Entries = map[string]fileEntry{}
	}
	return &contents, nil
}

func (s *FileStorage) save(contents *fileContents) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create storage dir: %w", err)
	}
	content, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage file: %w", err)
	}
	return os.WriteFile(s.Path, content, 0o600)
}

func (s *FileStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contents, err := s.load()
	if err != nil {
		return "", false, err
	}
	entry, ok := contents.Entries[key]
	if !ok {
		return "", false, nil
	}
	if s.now().Sub(entry.Created) > s.maxAge() {
		return "", false, nil
	}
	return entry.Value, true, nil
}

func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contents, err := s.load()
	if err != nil {
		// a corrupt file must not block a fresh login
		contents = &fileContents{Entries: map[string]fileEntry{}}
	}
	contents.Entries[key] = fileEntry{Value: value, Created: s.now()}
	return s.save(contents)
}

func (s *FileStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contents, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := contents.Entries[key]; !ok {
		return nil
	}
	delete(contents.Entries, key)
	return s.save(contents)
}

// DefaultKeyringService is the keychain service name used by KeyringStorage.
const DefaultKeyringService = "eventsctl"

// KeyringStorage keeps values in the OS keychain.
type KeyringStorage struct {
	Service string
}

func (s KeyringStorage) service() string {
	if s.Service != "" {
		return s.Service
	}
	return DefaultKeyringService
}

func (s KeyringStorage) Get(key string) (string, bool, error) {
	value, err := keyring.Get(s.service(), key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read keychain: %w", err)
	}
	return value, true, nil
}

func (s KeyringStorage) Set(key, value string) error {
	if err := keyring.Set(s.service(), key, value); err != nil {
		return fmt.Errorf("failed to write keychain: %w", err)
	}
	return nil
}

func (s KeyringStorage) Remove(key string) error {
	if err := keyring.Delete(s.service(), key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keychain item: %w", err)
	}
	return nil
}

// Storage modes accepted by NewStorage.
const (
	StorageMemory  = "memory"
	StorageFile    = "file"
	StorageKeyring = "keyring"
)

// NewStorage builds the ScopedStorage for a configured mode.
func NewStorage(mode, filePath string) (ScopedStorage, error) {
	switch mode {
	case "", StorageMemory:
		return NewMemoryStorage(), nil
	case StorageFile:
		if filePath == "" {
			return nil, errors.New("file storage requires a path")
		}
		return &FileStorage{Path: filePath}, nil
	case StorageKeyring:
		return KeyringStorage{}, nil
	default:
		return nil, fmt.Errorf("unsupported verifier storage: %s", mode)
	}
}
