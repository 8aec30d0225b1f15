package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultVersion is the protocol version assumed when a record omits it.
const DefaultVersion Version = "3.3"

// Version is a device protocol version such as "3.3".
//
// It decodes from either a number or a string and keeps the supplied text
// exactly, so 3.1 and "3.1" both resolve to "3.1".
type Version string

// UnmarshalJSON accepts a JSON number or string.
func (v *Version) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidVersion, err)
		}
		*v = Version(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, data)
	}
	*v = Version(n.String())
	return nil
}

// UnmarshalYAML accepts a YAML scalar.
func (v *Version) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d", ErrInvalidVersion, node.Line)
	}
	if node.Tag == "!!null" {
		return nil
	}
	*v = Version(strings.TrimSpace(node.Value))
	return nil
}

// String returns the version text.
func (v Version) String() string {
	return string(v)
}

// Descriptor identifies one infrared blaster.
//
// ID is both the MQTT client identity and the topic path segment for the
// device, so it must be unique across the registry.
type Descriptor struct {
	Name    string  `json:"name" yaml:"name"`
	ID      string  `json:"id" yaml:"id"`
	Key     string  `json:"key" yaml:"key"`
	IP      string  `json:"ip" yaml:"ip"`
	Version Version `json:"version,omitempty" yaml:"version,omitempty"`
}

// Validate checks required fields.
func (d Descriptor) Validate() error {
	var missing []string
	if d.ID == "" {
		missing = append(missing, "id")
	}
	if d.Key == "" {
		missing = append(missing, "key")
	}
	if d.IP == "" {
		missing = append(missing, "ip")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidDescriptor, strings.Join(missing, ", "))
	}
	return nil
}

// DisplayName returns Name, falling back to ID.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// String returns a representation with the local key masked.
func (d Descriptor) String() string {
	return fmt.Sprintf("Descriptor{Name:%q, ID:%q, IP:%q, Version:%s, Key:[REDACTED]}",
		d.Name, d.ID, d.IP, d.Version)
}
