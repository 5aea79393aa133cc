package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/sightingdb-go/internal/storage"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
)

func newTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	cfg := storage.DefaultConfig(t.TempDir())
	cfg.SnapshotInterval = 0
	cfg.SnapshotOnClose = false
	cfg.Logger = logger.NewNop()
	e, err := storage.New(cfg)
	require.NoError(t, err)
	require.NoError(t, e.Recover(context.Background()))
	t.Cleanup(func() { e.Close() })
	return e
}

type deniedCounter struct {
	modes []string
}

func (d *deniedCounter) RecordACLDenied(mode string) {
	d.modes = append(d.modes, mode)
}

type opCounter struct {
	writes  map[string]int
	reads   map[string]int
	deletes int
}

func newOpCounter() *opCounter {
	return &opCounter{writes: map[string]int{}, reads: map[string]int{}}
}

func (o *opCounter) RecordWrite(result string) { o.writes[result]++ }
func (o *opCounter) RecordRead(result string)  { o.reads[result]++ }
func (o *opCounter) RecordDelete()             { o.deletes++ }
