// Package capability sizes TabVault's persistence behavior to the host.
package capability

import "runtime"

// MemoryProbe reports whether the process is under memory pressure.
// The restorer consults it between chunks and aborts when it fires.
type MemoryProbe interface {
	HighPressure() bool
}

// ProbeFunc adapts a function to the MemoryProbe interface.
type ProbeFunc func() bool

// HighPressure implements MemoryProbe.
func (f ProbeFunc) HighPressure() bool { return f() }

// RuntimeProbe is the default MemoryProbe: live heap usage against a
// fixed budget.
type RuntimeProbe struct {
	// BudgetBytes is the heap-allocation ceiling. Zero disables the
	// probe (never reports pressure).
	BudgetBytes uint64
}

// NewRuntimeProbe builds a probe with the profile's memory budget.
func NewRuntimeProbe(limits Limits) *RuntimeProbe {
	return &RuntimeProbe{BudgetBytes: limits.MemoryBudgetBytes}
}

// HighPressure implements MemoryProbe.
func (p *RuntimeProbe) HighPressure() bool {
	if p.BudgetBytes == 0 {
		return false
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc >= p.BudgetBytes
}
