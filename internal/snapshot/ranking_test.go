package snapshot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Guliveer/hostpulse/internal/models"
)

func pids(procs []models.ProcessInfo) []int32 {
	out := make([]int32, len(procs))
	for i, p := range procs {
		out[i] = p.PID
	}
	return out
}

func TestRank(t *testing.T) {
	tests := []struct {
		name  string
		procs []models.ProcessInfo
		n     int
		key   Key
		want  []int32
	}{
		{
			name:  "ties broken by pid",
			procs: []models.ProcessInfo{{PID: 1, CPUUsage: 50}, {PID: 2, CPUUsage: 10}, {PID: 3, CPUUsage: 50}},
			n:     2,
			key:   ByCPU,
			want:  []int32{1, 3},
		},
		{
			name:  "fewer than n",
			procs: []models.ProcessInfo{{PID: 9, MemUsageMB: 1}, {PID: 4, MemUsageMB: 2}},
			n:     5,
			key:   ByMemory,
			want:  []int32{4, 9},
		},
		{
			name:  "nan sorts last",
			procs: []models.ProcessInfo{{PID: 1, CPUUsage: math.NaN()}, {PID: 2, CPUUsage: 0}},
			n:     2,
			key:   ByCPU,
			want:  []int32{2, 1},
		},
		{
			name: "empty",
			n:    5,
			key:  ByCPU,
			want: []int32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pids(Rank(tt.procs, tt.n, tt.key)))
		})
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	procs := []models.ProcessInfo{{PID: 3, CPUUsage: 1}, {PID: 1, CPUUsage: 9}}
	Rank(procs, 1, ByCPU)
	assert.Equal(t, int32(3), procs[0].PID)
}

func TestRankZeroN(t *testing.T) {
	assert.Empty(t, Rank([]models.ProcessInfo{{PID: 1}}, 0, ByCPU))
}
