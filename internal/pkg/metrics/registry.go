// Package metrics holds the Prometheus collectors of the companion service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var defaultRegistryManager = &RegistryManager{
	registerer: prometheus.DefaultRegisterer,
}

// RegistryManager holds the Registerer collectors are created against.
// Tests swap it for a private registry.
type RegistryManager struct {
	mu         sync.RWMutex
	registerer prometheus.Registerer
}

// SetRegisterer replaces the global Registerer.
func SetRegisterer(r prometheus.Registerer) {
	defaultRegistryManager.Set(r)
}

// GetRegisterer returns the global Registerer.
func GetRegisterer() prometheus.Registerer {
	return defaultRegistryManager.Get()
}

// Set replaces the Registerer. Nil restores the Prometheus default.
func (m *RegistryManager) Set(r prometheus.Registerer) {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerer = r
}

// Get returns the Registerer.
func (m *RegistryManager) Get() prometheus.Registerer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.registerer == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registerer
}
