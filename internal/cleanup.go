package internal

import (
	"sync"

	"go.uber.org/zap"
)

// CleanupManager tracks resources and ensures ordered cleanup in LIFO order.
type CleanupManager struct {
	mu     sync.Mutex
	funcs  []cleanupFunc
	logger *zap.Logger
}

type cleanupFunc struct {
	name string
	fn   func() error
}

// NewCleanupManager creates a new cleanup manager that reports failures to logger.
func NewCleanupManager(logger *zap.Logger) *CleanupManager {
	return &CleanupManager{logger: logger}
}

// Add registers a cleanup function. Functions are executed in LIFO order
// (last added, first executed).
func (m *CleanupManager) Add(name string, fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append([]cleanupFunc{{name, fn}}, m.funcs...)
}

// Execute runs all cleanup functions in reverse order (LIFO), logging any errors.
// This method always completes all cleanup operations, even if some fail.
func (m *CleanupManager) Execute() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cleanup := range m.funcs {
		if err := cleanup.fn(); err != nil {
			m.logger.Warn("cleanup failed", zap.String("resource", cleanup.name), zap.Error(err))
		}
	}
	m.funcs = nil
}
