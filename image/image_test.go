package image_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pseudofat/fatdefrag/image"
)

func TestNew_RejectsBadFATType(t *testing.T) {
	_, err := image.New("vol", 64, 2, 512, 10, 0, "OK")
	require.Error(t, err)
}

func TestNew_RejectsZeroClusterSize(t *testing.T) {
	_, err := image.New("vol", 12, 2, 0, 10, 0, "OK")
	require.Error(t, err)
}

func TestNew_AllClustersStartUnused(t *testing.T) {
	img, err := image.New("vol", 12, 2, 16, 10, 0, "OK")
	require.NoError(t, err)

	require.Equal(t, uint32(10), img.RealClusterCount())
	for _, table := range img.FATTables {
		for i, entry := range table {
			require.Equalf(t, image.Unused, entry, "cluster %d not marked UNUSED", i)
		}
	}
}

func TestAppendFile_ZeroByteFileStillConsumesOneCluster(t *testing.T) {
	img, err := image.New("vol", 12, 1, 16, 10, 0, "OK")
	require.NoError(t, err)

	idx, err := img.AppendFile("empty.txt", 1, "rwx", nil)
	require.NoError(t, err)

	chain, err := img.Chain(img.RootDir[idx].FirstCluster)
	require.NoError(t, err)
	require.Len(t, chain, 1)
}

func TestAppendFile_MultiClusterChainTerminatesAtFileEnd(t *testing.T) {
	img, err := image.New("vol", 12, 1, 4, 10, 0, "OK")
	require.NoError(t, err)

	data := []byte("twelve bytes")
	idx, err := img.AppendFile("f.bin", 1, "rwx", data)
	require.NoError(t, err)

	chain, err := img.Chain(img.RootDir[idx].FirstCluster)
	require.NoError(t, err)
	require.Len(t, chain, 3)
}

func TestChain_DetectsCycle(t *testing.T) {
	img, err := image.New("vol", 12, 1, 4, 4, 0, "OK")
	require.NoError(t, err)

	// Manually build a cycle: 0 -> 1 -> 0.
	img.FATTables[0][0] = 1
	img.FATTables[0][1] = 0

	_, err = img.Chain(0)
	require.Error(t, err)
}

func TestRootEntry_NameRoundTrip(t *testing.T) {
	var e image.RootEntry
	e.SetName("readme.txt")
	require.Equal(t, "readme.txt", e.Name())
}

func TestRootEntry_NameTruncatesToFixedWidth(t *testing.T) {
	var e image.RootEntry
	e.SetName("this-name-is-way-too-long-for-the-field")
	require.LessOrEqual(t, len(e.Name()), image.FileNameSize-1)
}
