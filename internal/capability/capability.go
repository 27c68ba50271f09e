// Package capability sizes TabVault's persistence behavior to the host.
package capability

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Tier identifies a capacity profile.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Classification thresholds.
const (
	// DefaultMemoryGB stands in when the host reveals no memory size.
	DefaultMemoryGB = 4.0

	lowMemoryGB     = 2.0
	highMemoryGB    = 8.0
	lowConcurrency  = 2
	highConcurrency = 8
)

// Hints are the raw host signals classification runs on. Zero values
// mean the signal was unavailable.
type Hints struct {
	// MemoryGB is the total host memory in GiB.
	MemoryGB float64

	// Concurrency is the host CPU count.
	Concurrency int
}

// Limits is a capacity profile. All engine sizing decisions flow from
// one of these.
type Limits struct {
	// Tier names the profile the limits came from.
	Tier Tier

	// MaxSessions bounds the session index; eviction enforces it.
	MaxSessions int

	// MaxDatasetBytes bounds the serialized (post-compression) dataset
	// size before the chunker splits it.
	MaxDatasetBytes int

	// MaxRowsPersisted bounds the row count before the chunker splits,
	// and caps the configured chunk size.
	MaxRowsPersisted int

	// MaxChunkBytes is the per-chunk in-memory ceiling the restorer
	// checks before materializing a chunk.
	MaxChunkBytes int64

	// MemoryBudgetBytes is the heap budget the default memory probe
	// compares against during chunk walks.
	MemoryBudgetBytes uint64
}

// Capacity profiles. The three tiers scale monotonically in every
// dimension.
var profiles = map[Tier]Limits{
	TierLow: {
		Tier:              TierLow,
		MaxSessions:       2,
		MaxDatasetBytes:   1 << 20, // 1 MiB
		MaxRowsPersisted:  10_000,
		MaxChunkBytes:     8 << 20,
		MemoryBudgetBytes: 256 << 20,
	},
	TierMedium: {
		Tier:              TierMedium,
		MaxSessions:       3,
		MaxDatasetBytes:   5 << 19, // 2.5 MiB
		MaxRowsPersisted:  25_000,
		MaxChunkBytes:     16 << 20,
		MemoryBudgetBytes: 512 << 20,
	},
	TierHigh: {
		Tier:              TierHigh,
		MaxSessions:       5,
		MaxDatasetBytes:   9 << 19, // 4.5 MiB
		MaxRowsPersisted:  75_000,
		MaxChunkBytes:     32 << 20,
		MemoryBudgetBytes: 1 << 30,
	},
}

// LimitsFor returns the profile for a tier. Unknown tiers get medium.
func LimitsFor(tier Tier) Limits {
	if l, ok := profiles[tier]; ok {
		return l
	}
	return profiles[TierMedium]
}

// Classify maps host hints onto a capacity profile.
//
// A missing memory hint defaults to mid-tier; a missing or low
// concurrency hint classifies low-end outright.
func Classify(h Hints) Limits {
	mem := h.MemoryGB
	if mem <= 0 {
		mem = DefaultMemoryGB
	}

	switch {
	case mem <= lowMemoryGB || h.Concurrency <= lowConcurrency:
		return profiles[TierLow]
	case mem >= highMemoryGB && h.Concurrency >= highConcurrency:
		return profiles[TierHigh]
	default:
		return profiles[TierMedium]
	}
}

// Detect reads host hints. It never fails: signals that cannot be read
// are left zero for Classify to default.
func Detect() Hints {
	return Hints{
		MemoryGB:    readTotalMemoryGB("/proc/meminfo"),
		Concurrency: runtime.NumCPU(),
	}
}

// DetectLimits is the common path: classify whatever the host reveals.
func DetectLimits() Limits {
	return Classify(Detect())
}

// readTotalMemoryGB parses MemTotal out of a meminfo-format file.
// Returns 0 when the file or field is unavailable (non-Linux hosts).
func readTotalMemoryGB(path string) float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0
		}
		return kb / (1 << 20)
	}
	return 0
}
