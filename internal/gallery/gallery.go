// Package gallery holds the enrolled faces used as match candidates and ranks a probe against them.
package gallery

import (
	"sync"

	"github.com/andresmejia3/faceguard/internal/types"
)

// Gallery is an ordered, append-only collection of enrolled faces. An entry's index is its
// identity for the lifetime of the gallery; Clear starts a new generation so cached identities
// computed against the old contents can be told apart.
type Gallery struct {
	mu      sync.RWMutex
	entries []types.GalleryEntry
	gen     uint64
}

func New() *Gallery {
	return &Gallery{}
}

// Append adds an entry and returns its index.
func (g *Gallery) Append(label string, feature types.Feature) int {
	return g.AppendEntry(types.GalleryEntry{Label: label, Feature: feature})
}

// AppendEntry adds a copy of e and returns its index.
func (g *Gallery) AppendEntry(e types.GalleryEntry) int {
	e.Feature = e.Feature.Clone()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, e)
	return len(g.entries) - 1
}

// Entry returns the entry at index.
func (g *Gallery) Entry(index int) (types.GalleryEntry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if index < 0 || index >= len(g.entries) {
		return types.GalleryEntry{}, false
	}
	return g.entries[index], true
}

// Load replaces the contents with entries (e.g. read back from the store) and starts a new generation.
func (g *Gallery) Load(entries []types.GalleryEntry) {
	cp := make([]types.GalleryEntry, len(entries))
	for i, e := range entries {
		cp[i] = e
		cp[i].Feature = e.Feature.Clone()
	}
	g.mu.Lock()
	g.entries = cp
	g.gen++
	g.mu.Unlock()
}

// Clear drops every entry and invalidates identities cached against the old contents.
func (g *Gallery) Clear() {
	g.mu.Lock()
	g.entries = nil
	g.gen++
	g.mu.Unlock()
}

// Snapshot returns the current entries and generation. The slice must be treated as read-only;
// Append never mutates entries already handed out.
func (g *Gallery) Snapshot() ([]types.GalleryEntry, uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entries[:len(g.entries):len(g.entries)], g.gen
}

func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

func (g *Gallery) Generation() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.gen
}

// Labels lists entry labels in index order.
func (g *Gallery) Labels() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.Label
	}
	return out
}
