// Package catalog provides read-only lookup of service definitions.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"marcador/internal/model"
)

// ErrServiceNotFound is returned by Get for unknown service IDs.
var ErrServiceNotFound = fmt.Errorf("service not found")

type servicesFile struct {
	Services []model.ServiceDefinition `yaml:"services"`
}

// Catalog holds service definitions loaded from a YAML file. The
// backing data is loaded once and only replaced by an explicit Reload.
type Catalog struct {
	path string

	mu       sync.RWMutex
	services map[string]model.ServiceDefinition
}

// Load reads and validates the services file at path.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the services file. On any error the previous data is
// kept untouched.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read services file: %w", err)
	}
	var file servicesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse services file: %w", err)
	}

	services := make(map[string]model.ServiceDefinition, len(file.Services))
	for i := range file.Services {
		svc := file.Services[i]
		if err := svc.Validate(); err != nil {
			return fmt.Errorf("invalid service definition: %w", err)
		}
		if _, dup := services[svc.ID]; dup {
			return fmt.Errorf("duplicate service id %q", svc.ID)
		}
		services[svc.ID] = svc
	}

	c.mu.Lock()
	c.services = services
	c.mu.Unlock()
	return nil
}

// Get returns the definition for a service id.
func (c *Catalog) Get(serviceID string) (*model.ServiceDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[serviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}
	return &svc, nil
}

// List returns all definitions ordered by id.
func (c *Catalog) List() []model.ServiceDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.ServiceDefinition, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Duration returns the total duration of a service in minutes.
func (c *Catalog) Duration(serviceID string) (int, error) {
	svc, err := c.Get(serviceID)
	if err != nil {
		return 0, err
	}
	return svc.DurationMinutes, nil
}

// Static builds a catalog from in-memory definitions. Used by tests
// and by callers that manage their own definition source.
func Static(services ...model.ServiceDefinition) (*Catalog, error) {
	m := make(map[string]model.ServiceDefinition, len(services))
	for _, svc := range services {
		if err := svc.Validate(); err != nil {
			return nil, err
		}
		m[svc.ID] = svc
	}
	return &Catalog{services: m}, nil
}
