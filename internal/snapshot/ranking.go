package snapshot

import (
	"cmp"
	"math"
	"slices"

	"github.com/Guliveer/hostpulse/internal/models"
)

// DefaultTopN is the default size of the ranked process lists.
const DefaultTopN = 5

// Key extracts the ranking value of a process.
type Key func(models.ProcessInfo) float64

// Ranking keys.
var (
	ByCPU    Key = func(p models.ProcessInfo) float64 { return p.CPUUsage }
	ByMemory Key = func(p models.ProcessInfo) float64 { return p.MemUsageMB }
)

// Rank returns the n processes with the highest key, ordered by key
// descending and then PID ascending. The input is not modified.
func Rank(procs []models.ProcessInfo, n int, key Key) []models.ProcessInfo {
	if n <= 0 {
		return []models.ProcessInfo{}
	}
	sorted := slices.Clone(procs)
	slices.SortFunc(sorted, func(a, b models.ProcessInfo) int {
		if c := cmp.Compare(rankValue(key, b), rankValue(key, a)); c != 0 {
			return c
		}
		return cmp.Compare(a.PID, b.PID)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		sorted = []models.ProcessInfo{}
	}
	return sorted
}

// rankValue sorts NaN keys last.
func rankValue(key Key, p models.ProcessInfo) float64 {
	v := key(p)
	if math.IsNaN(v) {
		return math.Inf(-1)
	}
	return v
}
