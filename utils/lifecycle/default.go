package lifecycle

import (
	"sync"

	"github.com/ugparu/gomux/utils/logger"
)

type defaultLifecycleManager[T Instance] struct {
	instance T
	mu       sync.Mutex
	tried    bool
	started  bool
	closed   bool
}

func NewDefaultManager[T Instance](instance T) Manager[T] {
	return &defaultLifecycleManager[T]{
		instance: instance,
	}
}

func (m *defaultLifecycleManager[T]) Start(startFunc func(T) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &StartedAfterCloseError{}
	}
	if m.tried {
		return &StartedAlreadyError{}
	}
	m.tried = true

	logger.Debugf(m.instance, "Starting")
	if err := startFunc(m.instance); err != nil {
		return err
	}
	m.started = true
	return nil
}

func (m *defaultLifecycleManager[T]) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *defaultLifecycleManager[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if !m.started {
		return nil
	}
	logger.Debugf(m.instance, "Closing")
	return m.instance.Close()
}
