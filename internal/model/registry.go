package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Registry loads the model bundle from disk and caches it for the
// process lifetime. The artifact is immutable after load; concurrent
// scoring calls share it without synchronization. Reload is permitted
// but not expected to be cheap.
type Registry struct {
	mu       sync.RWMutex
	path     string
	artifact *Artifact
}

// NewRegistry creates a registry for the given bundle path. No I/O
// happens until Load.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Load reads, validates, and caches the model bundle. Returns
// ErrArtifactIO if the file cannot be read or decoded, ErrArtifactSchema
// if the bundle shape is invalid.
func (r *Registry) Load() (*Artifact, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArtifactIO, err)
	}

	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArtifactIO, err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, schemaErr("bundle is not a mapping, got %T", probe)
	}

	var file artifactFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArtifactIO, err)
	}

	artifact, err := file.validate()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.artifact = artifact
	r.mu.Unlock()

	return artifact, nil
}

// Artifact returns the cached bundle, or nil if Load has not succeeded.
func (r *Registry) Artifact() *Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.artifact
}
