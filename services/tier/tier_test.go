package tier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveSupportedSizes(t *testing.T) {
	cases := []struct {
		width, height int
		tier          Tier
		cost          int64
	}{
		{800, 800, Trial, 0},
		{1024, 1024, Standard, 1},
		{2048, 2048, HD, 2},
		{4096, 4096, Ultra, 4},
	}

	for _, tc := range cases {
		tr, cost, ok := Resolve(tc.width, tc.height)
		require.True(t, ok)
		require.Equal(t, tc.tier, tr)
		require.Equal(t, tc.cost, cost)
	}
}

func TestResolveRejectsOtherSizes(t *testing.T) {
	cases := [][2]int{
		{0, 0},
		{512, 512},
		{800, 1024},
		{1024, 800},
		{1000, 1000},
		{1536, 1536},
		{4096, 2048},
		{8192, 8192},
		{-800, -800},
	}

	for _, tc := range cases {
		_, _, ok := Resolve(tc[0], tc[1])
		require.False(t, ok, "size %dx%d must be rejected", tc[0], tc[1])
		require.False(t, IsValidSize(tc[0], tc[1]))
	}
}

func TestIsValidSizeSupported(t *testing.T) {
	require.True(t, IsValidSize(800, 800))
	require.True(t, IsValidSize(1024, 1024))
	require.True(t, IsValidSize(2048, 2048))
	require.True(t, IsValidSize(4096, 4096))
}
