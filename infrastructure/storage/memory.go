package storage

import (
	"encoding/json"
	"sync"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const memoryComponent = "storage/memory"

// MemoryKeyValueStorage keeps the configuration map in RAM. It is safe for
// concurrent use.
type MemoryKeyValueStorage struct {
	mu     sync.RWMutex
	values map[ConfigKey]string
}

// NewMemoryKeyValueStorage creates an in-memory store. The optional argument
// is either a JSON configuration object or its base64 encoding; base64 is
// detected by attempting decode-then-parse.
func NewMemoryKeyValueStorage(config ...string) (*MemoryKeyValueStorage, error) {
	s := &MemoryKeyValueStorage{values: make(map[ConfigKey]string)}
	if len(config) == 0 || config[0] == "" {
		return s, nil
	}

	raw := []byte(config[0])
	if decoded, err := crypto.Base64ToBytes(config[0]); err == nil {
		var probe map[string]string
		if json.Unmarshal(decoded, &probe) == nil {
			raw = decoded
		}
	}

	parsed, err := parseConfigJSON(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, memoryComponent, "parse config", err)
	}
	s.values = parsed
	return s, nil
}

func parseConfigJSON(raw []byte) (map[ConfigKey]string, error) {
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, memoryComponent, "config is not a JSON string map", err)
	}
	values := make(map[ConfigKey]string, len(flat))
	for k, v := range flat {
		if !IsValidKey(k) {
			return nil, errors.Newf(errors.ErrCodeConfig, memoryComponent, "unknown configuration key %q", k)
		}
		if v != "" {
			values[ConfigKey(k)] = v
		}
	}
	return values, nil
}

func (s *MemoryKeyValueStorage) Get(key ConfigKey) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

func (s *MemoryKeyValueStorage) Set(key ConfigKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryKeyValueStorage) Delete(key ConfigKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryKeyValueStorage) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[ConfigKey]string)
	return nil
}

func (s *MemoryKeyValueStorage) Contains(key ConfigKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok, nil
}

func (s *MemoryKeyValueStorage) IsEmpty() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values) == 0, nil
}

func (s *MemoryKeyValueStorage) ReadAll() (map[ConfigKey]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ConfigKey]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryKeyValueStorage) SaveAll(values map[ConfigKey]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[ConfigKey]string, len(values))
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}
