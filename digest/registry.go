package digest

import (
	"fmt"
	"sync"
)

// Registry holds digesters in registration order. Order matters: upstream
// content extractors run before the digesters that consume their output.
type Registry struct {
	mu        sync.RWMutex
	digesters []Digester
	byName    map[string]Digester
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Digester)}
}

// Register appends a digester. Duplicate names are rejected.
func (r *Registry) Register(d Digester) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := d.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("digester %q already registered", name)
	}

	r.digesters = append(r.digesters, d)
	r.byName[name] = d
	return nil
}

// All returns the digesters in registration order
func (r *Registry) All() []Digester {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Digester, len(r.digesters))
	copy(result, r.digesters)
	return result
}

// Get returns a digester by name, or nil
func (r *Registry) Get(name string) Digester {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// AllOutputNames returns every digest row name the registered digesters
// can fill, in registration order
func (r *Registry) AllOutputNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, d := range r.digesters {
		names = append(names, outputNames(d)...)
	}
	return names
}

// Info describes a registered digester for the API surface
type Info struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Outputs     []string `json:"outputs"`
}

// DescribeAll returns metadata for every registered digester
func (r *Registry) DescribeAll() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Info, 0, len(r.digesters))
	for _, d := range r.digesters {
		result = append(result, Info{
			Name:        d.Name(),
			Label:       d.Label(),
			Description: d.Description(),
			Outputs:     outputNames(d),
		})
	}
	return result
}

// outputNames resolves the digest row names a digester fills
func outputNames(d Digester) []string {
	if outputs := d.Outputs(); len(outputs) > 0 {
		return outputs
	}
	return []string{d.Name()}
}

// DefaultRegistry builds the standard pipeline. Content extraction runs
// first, then derived text, then naming and search indexing.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range []Digester{
		&URLCrawlDigester{},
		&DocToMarkdownDigester{},
		&DocToScreenshotDigester{},
		&ImageOCRDigester{},
		&SpeechRecognitionDigester{},
		&URLCrawlSummaryDigester{},
		&TagsDigester{},
		&SlugDigester{},
		&SearchKeywordDigester{},
		&SearchSemanticDigester{},
	} {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}
