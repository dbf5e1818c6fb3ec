// Package cache computes and memoizes the precomputed state the
// defragmenter needs so it never has to re-derive it mid-run: the free
// cluster count, the work queue of occupied clusters, each file's cluster
// chain, and each file's target base offset.
package cache

import (
	"fmt"

	"github.com/boljen/go-bitmap"

	ferrors "github.com/pseudofat/fatdefrag/errors"
	"github.com/pseudofat/fatdefrag/image"
)

// Cache is a memoized precomputation over an image's cluster layout. It
// must be rebuilt (call Build again) any time the image's FAT copy 0
// changes outside of the defragmenter's own bookkeeping.
type Cache struct {
	// occupancy marks, over [0, RealClusterCount), whether copy 0's entry at
	// that index is neither Unused nor BadEntry, i.e. it holds live file
	// data. Backed by a bitmap instead of a linear rescan.
	occupancy bitmap.Bitmap

	FreeClustersCount uint32
	OccupiedWorkQueue []uint32
	Chains            [][]uint32
	FileBaseOffset    []uint32
}

// Build walks img and fills in every field of Cache. It assumes the checker
// has already validated the image; it does not re-detect cycles or
// divergences.
func Build(img *image.Image) (*Cache, error) {
	real := img.RealClusterCount()
	c := &Cache{
		occupancy: bitmap.New(int(real)),
	}

	table0 := img.FATTables[0]
	for i := uint32(0); i < real; i++ {
		switch table0[i] {
		case image.Unused:
			c.FreeClustersCount++
		case image.BadEntry:
			// Bad clusters are neither free nor part of the defrag work
			// set: they stay exactly where they are.
		default:
			c.occupancy.Set(int(i), true)
			c.OccupiedWorkQueue = append(c.OccupiedWorkQueue, i)
		}
	}

	c.Chains = make([][]uint32, len(img.RootDir))
	for i := range img.RootDir {
		chain, err := img.Chain(img.RootDir[i].FirstCluster)
		if err != nil {
			return nil, err
		}
		c.Chains[i] = chain
	}

	if err := c.computeFileBaseOffsets(img); err != nil {
		return nil, err
	}

	return c, nil
}

// IsOccupied reports whether copy-0 treats cluster index as holding live
// file data (as opposed to UNUSED or BAD).
func (c *Cache) IsOccupied(cluster uint32) bool {
	return c.occupancy.Get(int(cluster))
}

// computeFileBaseOffsets sweeps files in root-directory order, accumulating
// floor(file_size/cluster_size)+1 clusters per file (one spare cluster
// beyond the chain's own length when file_size is an exact multiple of
// cluster_size; otherwise exactly the chain's length, with no spare), and
// shifts the running base forward for every BAD cluster it would otherwise
// land on, so bad clusters are skipped over rather than overwritten.
func (c *Cache) computeFileBaseOffsets(img *image.Image) error {
	c.FileBaseOffset = make([]uint32, len(img.RootDir))
	table0 := img.FATTables[0]
	real := img.RealClusterCount()

	base := uint32(0)
	for i := range img.RootDir {
		for base < real && table0[base] == image.BadEntry {
			base++
		}
		c.FileBaseOffset[i] = base

		size := img.RootDir[i].FileSize
		clusterSize := int64(img.Boot.ClusterSize)
		span := uint32(size/clusterSize) + 1

		remaining := span
		for remaining > 0 {
			if base >= real {
				return ferrors.ErrInternalInvariant.WithMessage(
					fmt.Sprintf("ran out of clusters computing base offset for file %d", i))
			}
			base++
			if table0[base-1] != image.BadEntry {
				remaining--
			}
		}
	}
	return nil
}
