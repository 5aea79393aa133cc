package benchmark

import (
	"testing"

	"github.com/yndnr/sightingdb-go/internal/storage/snapshot"
)

func newManager(b *testing.B, dir string) *snapshot.Manager {
	b.Helper()
	m, err := snapshot.NewManager(snapshot.DefaultConfig(dir))
	if err != nil {
		b.Fatalf("open snapshot manager: %v", err)
	}
	return m
}

// BenchmarkSnapshotCreate benchmarks writing snapshots at several sizes.
func BenchmarkSnapshotCreate(b *testing.B) {
	for _, count := range RecordCounts {
		b.Run(scale(count), func(b *testing.B) {
			m := newManager(b, b.TempDir())
			data := exportOf(count)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := m.Create(data, uint64(i)); err != nil {
					b.Fatalf("create: %v", err)
				}
				b.StopTimer()
				if _, err := m.Prune(); err != nil {
					b.Fatalf("prune: %v", err)
				}
				b.StartTimer()
			}
		})
	}
}

// BenchmarkSnapshotLoad benchmarks loading the latest snapshot.
func BenchmarkSnapshotLoad(b *testing.B) {
	for _, count := range RecordCounts {
		b.Run(scale(count), func(b *testing.B) {
			m := newManager(b, b.TempDir())
			if _, err := m.Create(exportOf(count), 1); err != nil {
				b.Fatalf("create: %v", err)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				data, info, err := m.Load()
				if err != nil {
					b.Fatalf("load: %v", err)
				}
				if info.RecordCount != int64(count) || len(data) == 0 {
					b.Fatalf("loaded %d records, want %d", info.RecordCount, count)
				}
			}
		})
	}
}

// BenchmarkEngineSnapshot benchmarks a snapshot taken through the engine,
// which includes exporting the index under the lock.
func BenchmarkEngineSnapshot(b *testing.B) {
	e := newEngine(b, b.TempDir(), "batch")
	defer e.Close()
	prefill(b, e, 10000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.TriggerSnapshot(b.Context()); err != nil {
			b.Fatalf("snapshot: %v", err)
		}
	}
}
