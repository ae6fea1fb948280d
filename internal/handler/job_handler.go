// Package handler maps job effect names to the functions the scheduler
// invokes when a registration fires.
package handler

import (
	"fmt"
	"sync"
)

type JobHandler struct {
	handlers map[string]func(args ...any) error
	mutex    sync.Mutex
}

func NewJobHandler() *JobHandler {
	return &JobHandler{
		handlers: make(map[string]func(args ...any) error),
	}
}

// Register adds a new effect handler by name.
func (jh *JobHandler) Register(name string, fn func(args ...any) error) error {
	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	if _, exists := jh.handlers[name]; exists {
		return fmt.Errorf("handler '%s' already registered", name)
	}
	jh.handlers[name] = fn
	return nil
}

func (jh *JobHandler) Exists(name string) bool {
	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	_, exists := jh.handlers[name]
	return exists
}

func (jh *JobHandler) Execute(name string, args ...any) error {
	jh.mutex.Lock()
	fn, exists := jh.handlers[name]
	jh.mutex.Unlock()

	if !exists {
		return fmt.Errorf("handler '%s' not found", name)
	}
	return fn(args...)
}

func (jh *JobHandler) List() []string {
	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	names := make([]string, 0, len(jh.handlers))
	for name := range jh.handlers {
		names = append(names, name)
	}
	return names
}
