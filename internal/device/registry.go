package device

import (
	"fmt"

	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/config"
)

// Registry is the ordered, immutable set of descriptors loaded at startup.
// All methods are safe for concurrent use.
type Registry struct {
	descriptors []Descriptor
	byID        map[string]int
}

// NewRegistry builds a registry from descriptors, applying the default
// version and collapsing duplicate ids to the last occurrence.
func NewRegistry(descriptors []Descriptor) *Registry {
	r := &Registry{
		descriptors: make([]Descriptor, 0, len(descriptors)),
		byID:        make(map[string]int, len(descriptors)),
	}

	for _, d := range descriptors {
		if d.Version == "" {
			d.Version = DefaultVersion
		}
		if i, ok := r.byID[d.ID]; ok {
			r.descriptors[i] = d
			continue
		}
		r.byID[d.ID] = len(r.descriptors)
		r.descriptors = append(r.descriptors, d)
	}

	return r
}

// LoadRegistry reads devices from a JSON (or YAML) file.
//
// Returns:
//   - *Registry: the loaded registry, possibly empty
//   - error: wrapping config.ErrResourceNotFound or config.ErrConfigInvalid
func LoadRegistry(path string) (*Registry, error) {
	data, err := config.ReadResource(path)
	if err != nil {
		return nil, err
	}

	var records []Descriptor
	if err := config.Decode(path, data, &records); err != nil {
		return nil, err
	}

	for i, d := range records {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s record %d: %w", config.ErrConfigInvalid, path, i, err)
		}
	}

	return NewRegistry(records), nil
}

// Descriptors returns a copy of all descriptors in load order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Len returns the number of distinct devices.
func (r *Registry) Len() int {
	return len(r.descriptors)
}
