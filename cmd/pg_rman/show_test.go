package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossc-db/pg_rman/internal/catalog"
)

func TestRunShowListsAndDetail(t *testing.T) {
	root := t.TempDir()
	l := catalog.Layout{Root: root}
	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	seedBackup(t, l, start, catalog.ModeFull, catalog.StatusOK)

	assert.NoError(t, runShow([]string{"-B", root}))
	assert.NoError(t, runShow([]string{"-B", root, "detail"}))
}

func TestRunShowRequiresCatalogRoot(t *testing.T) {
	assert.Error(t, runShow(nil))
}

func TestRunPurgeIsIdempotent(t *testing.T) {
	root := t.TempDir()
	l := catalog.Layout{Root: root}
	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	seedBackup(t, l, start, catalog.ModeFull, catalog.StatusDeleted)

	require.NoError(t, runPurge([]string{"-B", root}))
	require.NoError(t, runPurge([]string{"-B", root}))

	entries, err := l.List(catalog.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
