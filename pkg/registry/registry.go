// Package registry holds the verified identity registry used for matching.
package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

var ErrInvalidIdentity = errors.New("invalid identity")

// Registry is an immutable snapshot of verified identities. Order is kept as
// loaded and decides ties while matching.
type Registry struct {
	identities []common.Identity
	byID       map[string]int
}

// New validates identities and returns a snapshot of them.
func New(identities []common.Identity) (*Registry, error) {
	r := &Registry{
		identities: make([]common.Identity, 0, len(identities)),
		byID:       make(map[string]int, len(identities)),
	}
	for i, id := range identities {
		if id.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidIdentity, i)
		}
		if textnorm.Key(id.CanonicalName) == "" {
			return nil, fmt.Errorf("%w: %s has no canonical name", ErrInvalidIdentity, id.ID)
		}
		if id.EntityType != common.IdentityPerson && id.EntityType != common.IdentityOrganization {
			return nil, fmt.Errorf("%w: %s has entity type %q", ErrInvalidIdentity, id.ID, id.EntityType)
		}
		if _, dup := r.byID[id.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidIdentity, id.ID)
		}

		id.Aliases = append([]string(nil), id.Aliases...)
		id.SanctionPrograms = append([]string(nil), id.SanctionPrograms...)
		r.byID[id.ID] = len(r.identities)
		r.identities = append(r.identities, id)
	}
	return r, nil
}

// Len returns the number of identities.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.identities)
}

// Identities returns the identities in registry order. The slice must not
// be modified.
func (r *Registry) Identities() []common.Identity {
	if r == nil {
		return nil
	}
	return r.identities
}

// Get returns the identity with id.
func (r *Registry) Get(id string) (common.Identity, bool) {
	if r == nil {
		return common.Identity{}, false
	}
	i, ok := r.byID[id]
	if !ok {
		return common.Identity{}, false
	}
	return r.identities[i], true
}

type document struct {
	Identities []common.Identity `yaml:"identities"`
}

// Parse decodes a registry document. Both a bare list of identities and a
// mapping with an "identities" key are accepted, in YAML or JSON.
func Parse(data []byte) ([]common.Identity, error) {
	var list []common.Identity
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return doc.Identities, nil
}

// Load reads and validates a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	}
	identities, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(identities)
}
