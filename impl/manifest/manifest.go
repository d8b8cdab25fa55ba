// Package manifest holds the resource manifest of one deployed version of the
// application shell: the mapping of every resource key to its content fingerprint,
// plus the ordered list of core shell files that must be fetched before a version
// may take over. The manifest is produced by the build and is immutable.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/aceeric/shellcache/impl/resourcekey"

	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"
)

// ErrInvalidManifest is returned for manifest documents that can't be used
var ErrInvalidManifest = errors.New("invalid manifest")

// Resources maps a resource key to a fingerprint. Two versions of a resource are
// the same if and only if their fingerprints are equal.
type Resources map[string]string

// document is the on-disk form of the manifest
type document struct {
	Resources Resources `yaml:"resources" json:"resources"`
	Core      []string  `yaml:"core" json:"core"`
}

// Manifest is one deployed version
type Manifest struct {
	resources Resources
	core      []string
	version   digest.Digest
}

// New creates a Manifest from a resource map and the core (staging) keys. Keys
// are canonicalized so that the entry document is always "/".
func New(resources Resources, core []string) (*Manifest, error) {
	if len(resources) == 0 {
		return nil, fmt.Errorf("%w: no resources", ErrInvalidManifest)
	}
	m := &Manifest{
		resources: make(Resources, len(resources)),
		core:      make([]string, 0, len(core)),
	}
	for key, fingerprint := range resources {
		if fingerprint == "" {
			return nil, fmt.Errorf("%w: empty fingerprint for key %q", ErrInvalidManifest, key)
		}
		m.resources[resourcekey.Canonical(key)] = fingerprint
	}
	seen := make(map[string]bool, len(core))
	for _, key := range core {
		key = resourcekey.Canonical(key)
		if seen[key] {
			continue
		}
		seen[key] = true
		m.core = append(m.core, key)
	}
	b, err := json.Marshal(document{Resources: m.resources, Core: m.core})
	if err != nil {
		return nil, err
	}
	m.version = digest.FromBytes(b)
	return m, nil
}

// Parse parses a manifest document. The document is JSON, or YAML with the same
// structure. Unknown fields are rejected since there is no schema versioning.
func Parse(b []byte) (*Manifest, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, err)
	}
	return New(doc.Resources, doc.Core)
}

// Load reads and parses the manifest file at 'path'
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest file %s: %w", path, err)
	}
	return Parse(b)
}

// Version uniquely identifies the manifest content
func (m *Manifest) Version() digest.Digest {
	return m.version
}

// Fingerprint returns the fingerprint of 'key' and whether the key is in the manifest
func (m *Manifest) Fingerprint(key string) (string, bool) {
	fp, exists := m.resources[resourcekey.Canonical(key)]
	return fp, exists
}

// Has returns true if the key is in the manifest
func (m *Manifest) Has(key string) bool {
	_, exists := m.resources[resourcekey.Canonical(key)]
	return exists
}

// Resources returns a copy of the resource map
func (m *Manifest) Resources() Resources {
	r := make(Resources, len(m.resources))
	for k, v := range m.resources {
		r[k] = v
	}
	return r
}

// Keys returns the resource keys in sorted order
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.resources))
	for k := range m.resources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Core returns the core shell keys in manifest order
func (m *Manifest) Core() []string {
	return append([]string(nil), m.core...)
}

// Len is the number of resources
func (m *Manifest) Len() int {
	return len(m.resources)
}
