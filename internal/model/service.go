package model

import "fmt"

// Service types. A simple service occupies the provider for its whole
// duration; a fractioned one is a sequence of stages, some of which
// leave the provider free.
const (
	ServiceSimple     = "simple"
	ServiceFractioned = "fractioned"
)

// Stage is one step of a fractioned service.
type Stage struct {
	Name             string `yaml:"name" json:"name"`
	DurationMinutes  int    `yaml:"duration_minutes" json:"duration_minutes"`
	OccupiesProvider bool   `yaml:"occupies_provider" json:"occupies_provider"`
}

// ServiceDefinition describes a bookable service.
type ServiceDefinition struct {
	ID              string  `yaml:"id" json:"id"`
	Name            string  `yaml:"name" json:"name"`
	Price           float64 `yaml:"price" json:"price"`
	Type            string  `yaml:"type" json:"type"`
	DurationMinutes int     `yaml:"duration_minutes" json:"duration_minutes"`
	Stages          []Stage `yaml:"stages,omitempty" json:"stages,omitempty"`
}

// Validate checks structural invariants: a known type, a positive
// duration, and for fractioned services stage durations summing to the
// total.
func (s *ServiceDefinition) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("service without id")
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("service %s: non-positive duration", s.ID)
	}
	switch s.Type {
	case ServiceSimple:
		if len(s.Stages) > 0 {
			return fmt.Errorf("service %s: simple service must not define stages", s.ID)
		}
	case ServiceFractioned:
		if len(s.Stages) == 0 {
			return fmt.Errorf("service %s: fractioned service without stages", s.ID)
		}
		sum := 0
		for _, st := range s.Stages {
			if st.DurationMinutes <= 0 {
				return fmt.Errorf("service %s: stage %q has non-positive duration", s.ID, st.Name)
			}
			sum += st.DurationMinutes
		}
		if sum != s.DurationMinutes {
			return fmt.Errorf("service %s: stage durations sum to %d, total is %d", s.ID, sum, s.DurationMinutes)
		}
	default:
		return fmt.Errorf("service %s: unknown type %q", s.ID, s.Type)
	}
	return nil
}

// IsFractioned reports whether the service has a stage breakdown.
func (s *ServiceDefinition) IsFractioned() bool {
	return s.Type == ServiceFractioned
}
