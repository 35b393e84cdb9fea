package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBestDate(t *testing.T) {
	t.Parallel()

	published := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	modified := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	fetched := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	a := Article{DatePublished: &published, DateModified: &modified, FetchedAt: fetched}
	assert.Equal(t, published, a.BestDate())

	a.DatePublished = nil
	assert.Equal(t, modified, a.BestDate())

	a.DateModified = nil
	assert.Equal(t, fetched, a.BestDate())
}

func TestFiltersExcludes(t *testing.T) {
	t.Parallel()

	filters := Filters{
		ExcludeAuthors: []string{"Redação"},
		ExcludeTerms:   []string{"horóscopo", "apostas"},
	}

	tests := []struct {
		name     string
		article  Article
		excluded bool
	}{
		{
			name:     "clean article passes",
			article:  Article{Title: "Campeonato decidido nos acréscimos", Author: "João Silva"},
			excluded: false,
		},
		{
			name:     "author match is case-insensitive substring",
			article:  Article{Title: "Rodada do fim de semana", Author: "REDAÇÃO Lance"},
			excluded: true,
		},
		{
			name:     "term matches title",
			article:  Article{Title: "Horóscopo do dia para atletas"},
			excluded: true,
		},
		{
			name:     "term matches description",
			article:  Article{Title: "Guia da rodada", Description: "Dicas de apostas esportivas"},
			excluded: true,
		},
		{
			name:     "empty author never matches author rules",
			article:  Article{Title: "Sem autor creditado"},
			excluded: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.excluded, filters.Excludes(tc.article))
		})
	}
}

func TestFiltersEmptyRulesExcludeNothing(t *testing.T) {
	t.Parallel()

	var filters Filters
	assert.False(t, filters.Excludes(Article{Title: "anything", Author: "anyone"}))
}
