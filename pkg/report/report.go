// Package report collects the changes found during one detection cycle and
// groups them for the digest.
package report

import (
	"sort"
	"sync"

	"sneakpeak/pkg/domain"
)

type indexedEntry struct {
	index int
	entry domain.ReportEntry
}

// Aggregator accumulates report entries. It is safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	entries []indexedEntry
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// AddAt records an entry at the given visit position. Entries() orders by
// position, so workers finishing out of order do not reorder the digest.
func (a *Aggregator) AddAt(index int, entry domain.ReportEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, indexedEntry{index: index, entry: entry})
}

// Entries returns a copy of the collected entries ordered by position.
func (a *Aggregator) Entries() []domain.ReportEntry {
	a.mu.Lock()
	sorted := append([]indexedEntry(nil), a.entries...)
	a.mu.Unlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].index < sorted[j].index
	})
	out := make([]domain.ReportEntry, len(sorted))
	for i, e := range sorted {
		out[i] = e.entry
	}
	return out
}

// ProjectGroup is one project heading in the digest.
type ProjectGroup struct {
	Name        string
	Competitors []CompetitorGroup
}

// CompetitorGroup is one competitor heading within a project.
type CompetitorGroup struct {
	Name    string
	Entries []domain.ReportEntry
}

// Group buckets entries by project name, then competitor name. Groups appear
// in order of first occurrence and entries keep their relative order.
func Group(entries []domain.ReportEntry) []ProjectGroup {
	var groups []ProjectGroup
	projectIdx := make(map[string]int)
	competitorIdx := make(map[[2]string]int)

	for _, e := range entries {
		pi, ok := projectIdx[e.ProjectName]
		if !ok {
			pi = len(groups)
			projectIdx[e.ProjectName] = pi
			groups = append(groups, ProjectGroup{Name: e.ProjectName})
		}

		key := [2]string{e.ProjectName, e.CompetitorName}
		ci, ok := competitorIdx[key]
		if !ok {
			ci = len(groups[pi].Competitors)
			competitorIdx[key] = ci
			groups[pi].Competitors = append(groups[pi].Competitors, CompetitorGroup{Name: e.CompetitorName})
		}

		groups[pi].Competitors[ci].Entries = append(groups[pi].Competitors[ci].Entries, e)
	}
	return groups
}
