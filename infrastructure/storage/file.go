package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
	"github.com/keeper-security/secrets-manager-go/infrastructure/logging"
)

const fileComponent = "storage/file"

// DefaultConfigFileName is used when no path is supplied.
const DefaultConfigFileName = "client-config.json"

// Environment switches for permission handling.
const (
	EnvSkipMode        = "KSM_CONFIG_SKIP_MODE"
	EnvSkipModeWarning = "KSM_CONFIG_SKIP_MODE_WARNING"
)

// fileLocks serializes saves per config path across all stores in this
// process. Two clients sharing a path share the mutex; cross-process
// coordination is out of scope.
var fileLocks sync.Map // abs path -> *sync.Mutex

func lockFor(path string) *sync.Mutex {
	actual, _ := fileLocks.LoadOrStore(path, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// FileKeyValueStorage persists the configuration map to a single JSON file.
// Every mutation flushes synchronously.
type FileKeyValueStorage struct {
	path string
	log  *logging.Logger
}

// NewFileKeyValueStorage opens (creating if necessary) a file-backed store.
// A missing path argument means DefaultConfigFileName in the working
// directory. Files are written atomically through a temp file with mode
// 0600; KSM_CONFIG_SKIP_MODE skips the additional permission hardening.
func NewFileKeyValueStorage(path ...string) (*FileKeyValueStorage, error) {
	p := DefaultConfigFileName
	if len(path) > 0 && path[0] != "" {
		p = path[0]
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, fileComponent, "resolve config path", err)
	}
	s := &FileKeyValueStorage{path: abs, log: logging.NewFromEnv(fileComponent)}

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		if err := s.createEmpty(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, fileComponent, "stat config file", err)
	} else {
		s.warnIfLoosePermissions()
	}
	return s, nil
}

// Path returns the absolute path of the backing file.
func (s *FileKeyValueStorage) Path() string {
	return s.path
}

func skipMode() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(EnvSkipMode)), "true")
}

func skipModeWarning() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(EnvSkipModeWarning)), "true")
}

func (s *FileKeyValueStorage) createEmpty() error {
	mu := lockFor(s.path)
	mu.Lock()
	defer mu.Unlock()
	if err := writeFileAtomic(s.path, []byte("{}\n")); err != nil {
		return errors.Wrap(errors.ErrCodeConfig, fileComponent, "create config file", err)
	}
	if !skipMode() {
		if err := hardenPermissions(s.path); err != nil {
			return errors.Wrap(errors.ErrCodeConfig, fileComponent, "set config file permissions", err)
		}
	}
	return nil
}

func (s *FileKeyValueStorage) warnIfLoosePermissions() {
	if skipModeWarning() {
		return
	}
	loose, err := permissionsTooOpen(s.path)
	if err == nil && loose {
		s.log.Warnf("configuration file %s is accessible by other users; set %s=TRUE to silence this warning", s.path, EnvSkipModeWarning)
	}
}

func (s *FileKeyValueStorage) load() (map[ConfigKey]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, fileComponent, "read config file", err)
	}
	if len(raw) == 0 {
		return map[ConfigKey]string{}, nil
	}
	values, err := parseConfigJSON(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, fileComponent, "parse config file", err)
	}
	return values, nil
}

func (s *FileKeyValueStorage) store(values map[ConfigKey]string) error {
	flat := make(map[string]string, len(values))
	for k, v := range values {
		flat[string(k)] = v
	}
	raw, err := json.MarshalIndent(flat, "", "    ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, fileComponent, "marshal config", err)
	}
	if err := writeFileAtomic(s.path, append(raw, '\n')); err != nil {
		return errors.Wrap(errors.ErrCodeConfig, fileComponent, "write config file", err)
	}
	if !skipMode() {
		if err := hardenPermissions(s.path); err != nil {
			return errors.Wrap(errors.ErrCodeConfig, fileComponent, "set config file permissions", err)
		}
	}
	return nil
}

// writeFileAtomic writes via a temp file + rename in the target directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ksm-config-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *FileKeyValueStorage) Get(key ConfigKey) (string, error) {
	values, err := s.load()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (s *FileKeyValueStorage) Set(key ConfigKey, value string) error {
	mu := lockFor(s.path)
	mu.Lock()
	defer mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.store(values)
}

func (s *FileKeyValueStorage) Delete(key ConfigKey) error {
	mu := lockFor(s.path)
	mu.Lock()
	defer mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	delete(values, key)
	return s.store(values)
}

func (s *FileKeyValueStorage) DeleteAll() error {
	mu := lockFor(s.path)
	mu.Lock()
	defer mu.Unlock()
	return s.store(map[ConfigKey]string{})
}

func (s *FileKeyValueStorage) Contains(key ConfigKey) (bool, error) {
	values, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := values[key]
	return ok, nil
}

func (s *FileKeyValueStorage) IsEmpty() (bool, error) {
	values, err := s.load()
	if err != nil {
		return false, err
	}
	return len(values) == 0, nil
}

func (s *FileKeyValueStorage) ReadAll() (map[ConfigKey]string, error) {
	return s.load()
}

func (s *FileKeyValueStorage) SaveAll(values map[ConfigKey]string) error {
	mu := lockFor(s.path)
	mu.Lock()
	defer mu.Unlock()
	copied := make(map[ConfigKey]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return s.store(copied)
}
