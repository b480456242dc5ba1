package membership

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSkipsMalformedLines(t *testing.T) {
	req := require.New(t)
	s := Parse("10\n\nabc\n-5\r\n 42 \n9223372036854775808\n+7\n10\n")
	req.True(s.Equal(New(10, -5, 42, 7)), "got %v", s.IDs())
}

func TestEncodeIsNewlineTerminated(t *testing.T) {
	req := require.New(t)
	req.Equal("", New().Encode())
	req.Equal("-5\n10\n42\n", New(42, -5, 10).Encode())
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
	}{
		{name: "empty"},
		{name: "single", ids: []int64{1}},
		{name: "mixed signs", ids: []int64{10, -5, 42, 0}},
		{name: "extremes", ids: []int64{-9223372036854775808, 9223372036854775807}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.ids...)
			require.True(t, Parse(s.Encode()).Equal(s))
		})
	}
}

func TestToggleIsIdempotentPerPair(t *testing.T) {
	req := require.New(t)

	orig := New(1, 2, 3)
	s := orig.Clone()
	s.Add(2)
	s.Remove(2)
	req.False(s.Contains(2))
	s.Add(2)
	req.True(s.Equal(orig))

	s = orig.Clone()
	req.True(s.Toggle(99))
	req.False(s.Toggle(99))
	req.True(s.Equal(orig))
}

func TestCloneIsIndependent(t *testing.T) {
	req := require.New(t)
	a := New(1)
	b := a.Clone()
	b.Add(2)
	req.False(a.Contains(2))
	req.Equal([]int64{1, 2}, b.IDs())
}

func TestCodecCloneOfNil(t *testing.T) {
	c := Codec{}
	s := c.Clone(nil)
	s.Add(1)
	require.Equal(t, 1, s.Len())
}
