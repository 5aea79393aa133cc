// Package benchmark holds performance benchmarks for the SightingDB storage
// path.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run one scale only:
//
//	go test -bench='BenchmarkEngineRecover/records_10000' -benchtime=10x ./internal/tests/benchmark/...
//
// Compare results:
//
//	go test -bench=. -benchmem -count=5 ./internal/tests/benchmark/... | tee new.txt
//	benchstat old.txt new.txt
package benchmark
