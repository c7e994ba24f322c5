// Package tempfile scopes temporary files to the job that created them.
//
// Every job owns one Manager; files it creates live under the configured
// work directory and are deleted best-effort when the job is reaped.
// Deliverables that must outlive the job (preview samples, finished
// transcodes) are released from the manager before cleanup runs.
package tempfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"squish/internal/logging"
	"squish/internal/services"
)

// Manager tracks the temporary files owned by a single job.
type Manager struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	paths []string
}

// NewManager returns a manager rooted at dir. The directory is created on
// first use, not here.
func NewManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{dir: dir, logger: logger}
}

// Dir returns the work directory files are created under.
func (m *Manager) Dir() string {
	return m.dir
}

// Create reserves a uniquely named empty file and registers it for
// cleanup. The extension may be passed with or without its leading dot.
func (m *Manager) Create(prefix, ext string) (string, error) {
	return m.CreateWithBytes(prefix, ext, nil)
}

// CreateWithBytes is Create with initial contents.
func (m *Manager) CreateWithBytes(prefix, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "tempfile", "create",
			fmt.Sprintf("create work directory %s", m.dir), err)
	}
	path := filepath.Join(m.dir, uniqueName(prefix, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "tempfile", "create",
			fmt.Sprintf("write %s", path), err)
	}
	m.mu.Lock()
	m.paths = append(m.paths, path)
	m.mu.Unlock()
	return path, nil
}

// Adopt registers an existing path for cleanup.
func (m *Manager) Adopt(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	m.mu.Lock()
	m.paths = append(m.paths, path)
	m.mu.Unlock()
}

// Release removes path from the cleanup set without deleting it, handing
// ownership to the caller. Reports whether the manager owned the path.
func (m *Manager) Release(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, candidate := range m.paths {
		if candidate == path {
			m.paths = append(m.paths[:i], m.paths[i+1:]...)
			return true
		}
	}
	return false
}

// Paths returns the currently owned paths, oldest first.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.paths))
	copy(out, m.paths)
	return out
}

// Cleanup deletes every owned file. Missing files are fine; other delete
// failures are logged and skipped. Safe to call repeatedly.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	paths := m.paths
	m.paths = nil
	m.mu.Unlock()

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("temp file not removed",
				logging.String("path", path),
				logging.Error(err))
		}
	}
}

// uniqueName keeps collisions impossible within a process and unlikely
// across restarts sharing a work directory.
func uniqueName(prefix, ext string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "squish"
	}
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s%s", prefix, time.Now().UnixNano(), token, ext)
}
