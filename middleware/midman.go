package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

type namedHandler struct {
	name string
	h    gin.HandlerFunc
}

// MiddlewareManager is a named, mutable middleware list. The router mounts Use() once;
// features add or remove their pre-handlers by name afterwards.
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []namedHandler
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Add registers h under name. A second Add with the same name replaces the handler
// in place and keeps its position.
func (m *MiddlewareManager) Add(name string, h gin.HandlerFunc) *MiddlewareManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.mids {
		if m.mids[i].name == name {
			m.mids[i].h = h
			return m
		}
	}
	m.mids = append(m.mids, namedHandler{name: name, h: h})
	return m
}

// Remove drops name; unknown names are ignored.
func (m *MiddlewareManager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.mids {
		if m.mids[i].name == name {
			m.mids = append(m.mids[:i:i], m.mids[i+1:]...)
			return
		}
	}
}

func (m *MiddlewareManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.mids))
	for i, nh := range m.mids {
		out[i] = nh.name
	}
	return out
}

// Use returns the single gin.HandlerFunc mounted on the engine.
// Handlers run in order and must not call c.Next themselves; an abort
// stops the chain.
func (m *MiddlewareManager) Use() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		snapshot := append([]namedHandler(nil), m.mids...)
		m.mu.RUnlock()

		for _, nh := range snapshot {
			nh.h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}
