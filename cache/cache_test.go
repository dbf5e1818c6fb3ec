package cache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pseudofat/fatdefrag/cache"
	"github.com/pseudofat/fatdefrag/image"
	"github.com/pseudofat/fatdefrag/internal/fstesting"
)

func TestBuild_FreeClustersCountAndWorkQueue(t *testing.T) {
	img := fstesting.NewImage(t, 1, 16, 10, 0)
	fstesting.PlaceFile(t, img, "a.bin", []uint32{0, 2, 4}, 'a')

	c, err := cache.Build(img)
	require.NoError(t, err)

	require.Equal(t, uint32(7), c.FreeClustersCount)
	require.ElementsMatch(t, []uint32{0, 2, 4}, c.OccupiedWorkQueue)
	require.True(t, c.IsOccupied(0))
	require.False(t, c.IsOccupied(1))
}

func TestBuild_ExcludesBadClustersFromFreeCountAndQueue(t *testing.T) {
	img := fstesting.NewImage(t, 1, 16, 10, 0)
	fstesting.PlaceFile(t, img, "a.bin", []uint32{0, 1}, 'a')
	fstesting.MarkBad(img, 5)

	c, err := cache.Build(img)
	require.NoError(t, err)

	require.Equal(t, uint32(7), c.FreeClustersCount)
	require.NotContains(t, c.OccupiedWorkQueue, uint32(5))
	require.False(t, c.IsOccupied(5))
}

func TestBuild_ChainsMatchRootDirectoryOrder(t *testing.T) {
	img := fstesting.NewImage(t, 1, 16, 10, 0)
	fstesting.PlaceFile(t, img, "a.bin", []uint32{3, 1, 0}, 'a')
	fstesting.PlaceFile(t, img, "b.bin", []uint32{9, 8}, 'b')

	c, err := cache.Build(img)
	require.NoError(t, err)

	require.Equal(t, []uint32{3, 1, 0}, c.Chains[0])
	require.Equal(t, []uint32{9, 8}, c.Chains[1])
}

func TestBuild_FileBaseOffsetSkipsBadClusters(t *testing.T) {
	img := fstesting.NewImage(t, 1, 16, 10, 0)
	fstesting.MarkBad(img, 0)
	fstesting.PlaceFile(t, img, "a.bin", []uint32{5}, 'a')

	c, err := cache.Build(img)
	require.NoError(t, err)

	require.NotEqual(t, uint32(0), c.FileBaseOffset[0], "base offset must not land on a BAD cluster")

	realTable := img.FATTables[0]
	require.NotEqual(t, image.BadEntry, realTable[c.FileBaseOffset[0]])
}
