// Package fstesting holds test-only helpers shared across the pseudoFAT
// packages: building small synthetic images with a precise, hand-specified
// fragmentation pattern, and round-tripping an image through the codec
// using an in-memory stream. Nothing outside _test.go files should import
// this package.
package fstesting

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/pseudofat/fatdefrag/codec"
	"github.com/pseudofat/fatdefrag/image"
)

// NewImage builds an empty image with the given geometry, failing the test
// immediately if the parameters are invalid.
func NewImage(t *testing.T, fatCopies int32, clusterSize, clusterCount, reserved uint32) *image.Image {
	t.Helper()
	img, err := image.New("test volume", 12, fatCopies, clusterSize, clusterCount, reserved, "OK")
	require.NoError(t, err, "failed to build test image")
	return img
}

// PlaceFile adds a root entry whose chain is exactly the supplied cluster
// sequence, in order, regardless of whether those clusters are contiguous.
// This is how fragmentation scenarios get set up deterministically instead
// of relying on whatever AppendFile's first-fit allocator would produce.
// Each cluster's payload is filled with a byte marker so content-
// preservation assertions have something to compare after a defrag run.
func PlaceFile(t *testing.T, img *image.Image, name string, chain []uint32, marker byte) {
	t.Helper()
	require.NotEmpty(t, chain, "a file must occupy at least one cluster")

	for i, cluster := range chain {
		var next uint32
		if i == len(chain)-1 {
			next = image.FileEnd
		} else {
			next = chain[i+1]
		}
		for _, table := range img.FATTables {
			table[cluster] = next
		}
		for b := range img.Clusters[cluster] {
			img.Clusters[cluster][b] = marker
		}
	}

	entry := image.RootEntry{
		FileType:     1,
		FileSize:     int64(len(chain)) * int64(img.Boot.ClusterSize),
		FirstCluster: chain[0],
	}
	entry.SetName(name)
	img.RootDir = append(img.RootDir, entry)
	img.Boot.RootDirectoryMaxEntriesCount = int64(len(img.RootDir))
}

// MarkBad sets every FAT copy's entry at cluster to BadEntry.
func MarkBad(img *image.Image, cluster uint32) {
	for _, table := range img.FATTables {
		table[cluster] = image.BadEntry
	}
}

// RoundTrip encodes img to an in-memory buffer via the codec and decodes it
// back, returning the reconstructed image. This exercises the same
// byte-stream path a real file would, without touching disk.
func RoundTrip(t *testing.T, img *image.Image) *image.Image {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(img, &buf), "encoding image failed")

	stream := bytesextra.NewReadWriteSeeker(buf.Bytes())
	decoded, err := codec.Decode(stream)
	require.NoError(t, err, "decoding image failed")
	return decoded
}

// PayloadString returns the bytes of a file's chain concatenated in
// traversal order, for comparing content before and after defragmentation.
func PayloadString(img *image.Image, chain []uint32) []byte {
	out := make([]byte, 0, len(chain)*int(img.Boot.ClusterSize))
	for _, cluster := range chain {
		out = append(out, img.Clusters[cluster]...)
	}
	return out
}
