package classify

import (
	"sort"
	"sync"
)

// Well-known source identifiers.
const (
	SourceAlipay = "com.eg.android.AlipayGphone"
	SourceWeChat = "com.tencent.mm"
)

// Source describes one watched source and the classifier applied to it.
type Source struct {
	ID         string
	Classifier Classifier // nil means Payment
}

// Registry maps watched sources to classifiers and names the primary source,
// the one whose posts also produce a "posted" notification. Registry is safe
// for concurrent use; Replace swaps the whole table atomically.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Classifier
	primary string
}

// NewRegistry builds a registry from sources. primary need not be in sources,
// in which case no source emits "posted".
func NewRegistry(primary string, sources ...Source) *Registry {
	r := &Registry{}
	r.Replace(primary, sources...)
	return r
}

// DefaultRegistry watches Alipay (primary) and WeChat with the payment
// classifier.
func DefaultRegistry() *Registry {
	return NewRegistry(SourceAlipay, Source{ID: SourceAlipay}, Source{ID: SourceWeChat})
}

// Replace swaps the watched sources and primary source.
func (r *Registry) Replace(primary string, sources ...Source) {
	m := make(map[string]Classifier, len(sources))
	for _, s := range sources {
		if s.ID == "" {
			continue
		}
		c := s.Classifier
		if c == nil {
			c = Payment
		}
		m[s.ID] = c
	}
	r.mu.Lock()
	r.sources = m
	r.primary = primary
	r.mu.Unlock()
}

// Watched reports whether sourceID is a watched source.
func (r *Registry) Watched(sourceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[sourceID]
	return ok
}

// For returns the classifier for sourceID, or Payment if the source is not
// registered.
func (r *Registry) For(sourceID string) Classifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.sources[sourceID]; ok {
		return c
	}
	return Payment
}

// Primary returns the primary source id.
func (r *Registry) Primary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary
}

// Sources returns the watched source ids in sorted order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
