package stage

import (
	"errors"
	"fmt"
	"strings"
)

// Descriptor is one named unit of work in the evaluation sequence
type Descriptor struct {
	Index int    `json:"index" yaml:"index"` // 0-based position
	Label string `json:"label" yaml:"label"`
}

// Registry is the fixed, ordered list of stages a run walks through.
// It is built once and never mutated, so it is safe to share between runs.
type Registry struct {
	stages []Descriptor
}

// NewRegistry builds a registry from ordered labels
func NewRegistry(labels []string) (*Registry, error) {
	if len(labels) == 0 {
		return nil, errors.New("stage registry: at least one stage is required")
	}

	stages := make([]Descriptor, len(labels))
	for i, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, fmt.Errorf("stage registry: stage %d has an empty label", i)
		}
		stages[i] = Descriptor{Index: i, Label: label}
	}

	return &Registry{stages: stages}, nil
}

// Len returns the number of stages
func (r *Registry) Len() int {
	return len(r.stages)
}

// At returns the stage at index i
func (r *Registry) At(i int) (Descriptor, bool) {
	if i < 0 || i >= len(r.stages) {
		return Descriptor{}, false
	}
	return r.stages[i], true
}

// Final returns the last stage, the one that runs scoring
func (r *Registry) Final() Descriptor {
	return r.stages[len(r.stages)-1]
}

// IsFinal reports whether d is the last stage
func (r *Registry) IsFinal(d Descriptor) bool {
	return d.Index == len(r.stages)-1
}

// Stages returns a copy of the descriptors in order
func (r *Registry) Stages() []Descriptor {
	out := make([]Descriptor, len(r.stages))
	copy(out, r.stages)
	return out
}
