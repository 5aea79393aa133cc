package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/storage"
	"github.com/yndnr/sightingdb-go/internal/storage/snapshot"
	"github.com/yndnr/sightingdb-go/internal/storage/wal"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
)

// RecordCounts are the index sizes the scaling benchmarks run at.
var RecordCounts = []int{1000, 10000, 100000}

// namespaces spreads records over a realistic tree.
var namespaces = []string{
	"intel/ipv4", "intel/ipv6", "intel/domain",
	"intel/hash/md5", "intel/hash/sha256", "mail/sender",
}

// newValue returns a unique 26-byte value.
func newValue() []byte {
	return []byte(ulid.Make().String())
}

func values(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = newValue()
	}
	return out
}

// newEngine opens an engine without background snapshots.
func newEngine(b *testing.B, dir string, mode wal.SyncMode) *storage.Engine {
	b.Helper()
	cfg := storage.DefaultConfig(dir)
	cfg.WAL.SyncMode = mode
	cfg.SnapshotInterval = 0
	cfg.SnapshotOnClose = false
	cfg.Logger = logger.NewNop()

	e, err := storage.New(cfg)
	if err != nil {
		b.Fatalf("open engine: %v", err)
	}
	if err := e.Recover(context.Background()); err != nil {
		b.Fatalf("recover: %v", err)
	}
	return e
}

// prefill writes count distinct values and returns them.
func prefill(b *testing.B, e *storage.Engine, count int) [][]byte {
	b.Helper()
	ctx := context.Background()
	vals := values(count)
	for i, v := range vals {
		if err := e.Write(ctx, namespaces[i%len(namespaces)], v, 0); err != nil {
			b.Fatalf("prefill: %v", err)
		}
	}
	return vals
}

// exportOf builds snapshot content of count records without an engine.
func exportOf(count int) []snapshot.Namespace {
	now := time.Now().Unix()
	out := make([]snapshot.Namespace, len(namespaces))
	for i := range out {
		out[i].Name = namespaces[i]
	}
	for i := 0; i < count; i++ {
		ns := &out[i%len(out)]
		ns.Records = append(ns.Records, snapshot.Record{
			Value:    newValue(),
			Sighting: domain.Sighting{Count: uint64(i + 1), FirstSeen: now, LastSeen: now},
		})
	}
	return out
}

func scale(count int) string {
	return fmt.Sprintf("records_%d", count)
}
