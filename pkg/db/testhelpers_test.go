package db

import (
	"database/sql"
	"sync"
	"time"

	"sneakpeak/pkg/domain"
)

type handle struct{ db *sql.DB }

func (h handle) DB() *sql.DB { return h.db }

// stepClock returns base, base+1s, base+2s, ...
func stepClock(base time.Time) func() time.Time {
	var (
		mu sync.Mutex
		n  int
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := base.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

func strPtr(s string) *string { return &s }

func sampleProjects() []domain.Project {
	return []domain.Project{
		{
			ID:   "p-beta",
			Name: "Beta",
			Competitors: []domain.Competitor{
				{ID: "c-zed", Name: "Zed Shop", Targets: []domain.Target{
					{ID: "t-zed-home", URL: "https://zed.example/", PageType: domain.PageTypeHomepage},
				}},
			},
		},
		{
			ID:   "p-alpha",
			Name: "Alpha",
			Competitors: []domain.Competitor{
				{ID: "c-acme", Name: "Acme", Targets: []domain.Target{
					{ID: "t-acme-shop", URL: "https://acme.example/shop", PageType: domain.PageTypeShop},
					{ID: "t-acme-home", URL: "https://acme.example/", PageType: domain.PageTypeHomepage},
				}},
			},
		},
	}
}
