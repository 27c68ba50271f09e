// Package benchmark provides performance benchmarks for TabVault.
//
// Run everything with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Sweep one area at a larger benchtime:
//
//	go test -bench=BenchmarkDataset -benchmem -benchtime=10s ./internal/tests/benchmark/...
//
// Compare runs:
//
//	go test -bench=. -benchmem -count=5 ./internal/tests/benchmark/... | tee new.txt
//	benchstat old.txt new.txt
package benchmark
