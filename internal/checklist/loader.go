package checklist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Item is one maintenance step in a device type's fixed checklist.
type Item struct {
	Label string `json:"label"`
	Hint  string `json:"hint,omitempty"`
}

// Template is the ordered checklist defined per device type. ItemCount is
// the authoritative item total used to bound synced progress indices.
type Template struct {
	DeviceType string `json:"device_type"`
	Name       string `json:"name"`
	Version    string `json:"version,omitempty"`
	Items      []Item `json:"items"`
}

func (t *Template) ItemCount() int {
	return len(t.Items)
}

// Loader resolves checklist templates by device type from JSON files on the
// configured search paths, validating each against the template schema.
type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

func (l *Loader) Load(deviceType string) (*Template, error) {
	if cached, ok := l.cache.Load(deviceType); ok {
		return cached.(*Template), nil
	}

	var data []byte
	var err error
	var foundPath string

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, deviceType+".json")
		data, err = os.ReadFile(fullPath)
		if err == nil {
			foundPath = fullPath
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("checklist template not found: %s (searched in: %v)", deviceType, l.searchPaths)
	}

	if err := l.validator.ValidateTemplate(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var template Template
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}

	l.cache.Store(deviceType, &template)

	return &template, nil
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
