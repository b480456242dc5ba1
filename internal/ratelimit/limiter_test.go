package ratelimit

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstMessageNeverThrottled(t *testing.T) {
	l := New()
	require.False(t, l.ShouldThrottle(1, 0, 1000))
	require.Equal(t, 0, l.Len())
}

func TestWindowBoundaryIsInclusive(t *testing.T) {
	const (
		last  = int64(100)
		delay = int64(10)
	)
	tests := []struct {
		name string
		at   int64
		want bool
	}{
		{name: "same second", at: last, want: true},
		{name: "inside window", at: last + delay - 1, want: true},
		{name: "on boundary", at: last + delay, want: true},
		{name: "just after", at: last + delay + 1, want: false},
		{name: "clock went back", at: last - 50, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			l.RecordAccepted(7, last)
			require.Equal(t, tt.want, l.ShouldThrottle(7, tt.at, delay))
		})
	}
}

func TestCheckDoesNotExtendWindow(t *testing.T) {
	req := require.New(t)
	l := New()
	l.RecordAccepted(1, 0)

	req.True(l.ShouldThrottle(1, 9, 10))
	req.True(l.ShouldThrottle(1, 10, 10))
	req.False(l.ShouldThrottle(1, 11, 10))

	last, ok := l.Last(1)
	req.True(ok)
	req.Equal(int64(0), last)
}

func TestSendersAreIndependent(t *testing.T) {
	req := require.New(t)
	l := New()
	l.RecordAccepted(1, 100)
	req.False(l.ShouldThrottle(2, 100, 10))
	l.RecordAccepted(1, 200)
	last, _ := l.Last(1)
	req.Equal(int64(200), last)
}

func TestConcurrentAccess(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for ts := int64(0); ts < 100; ts++ {
				if !l.ShouldThrottle(id, ts, 0) {
					l.RecordAccepted(id, ts)
				}
			}
		}(int64(i))
	}
	wg.Wait()
	require.Equal(t, 32, l.Len())
}

func TestHugeWindowStillThrottles(t *testing.T) {
	l := New()
	l.RecordAccepted(1, 1_700_000_000)
	require.True(t, l.ShouldThrottle(1, 1_700_000_001, math.MaxInt64))
	require.True(t, l.ShouldThrottle(1, 1_700_000_000, math.MaxInt64))
}
