package workpool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllJobs(t *testing.T) {
	p := New(4)
	defer p.Close()

	var counter int64
	for i := 0; i < 100; i++ {
		p.AddJob(func() {
			atomic.AddInt64(&counter, 1)
		})
	}
	p.WaitAll()

	require.EqualValues(t, 100, atomic.LoadInt64(&counter))
}

func TestPoolSupportsRepeatedBarriers(t *testing.T) {
	p := New(2)
	defer p.Close()

	var stage1, stage2 int64
	for i := 0; i < 10; i++ {
		p.AddJob(func() { atomic.AddInt64(&stage1, 1) })
	}
	p.WaitAll()
	require.EqualValues(t, 10, stage1)

	for i := 0; i < 10; i++ {
		p.AddJob(func() { atomic.AddInt64(&stage2, 1) })
	}
	p.WaitAll()
	require.EqualValues(t, 10, stage2)
}

func TestSplitJobs(t *testing.T) {
	cases := []struct {
		name string
		j, t int
		want []int
	}{
		{"worked example 65/32", 65, 32, []int{32, 17, 16}},
		{"worked example 36/18", 36, 18, []int{18, 18}},
		{"fits in one batch", 10, 32, []int{10}},
		{"exactly two batches", 64, 32, []int{32, 32}},
		{"zero jobs", 0, 32, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitJobs(tc.j, tc.t)
			assert.Equal(t, tc.want, got)

			sum := 0
			for _, b := range got {
				sum += b
			}
			assert.Equal(t, tc.j, sum, "batches must sum to the job count")
		})
	}
}
