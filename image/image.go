// Package image is the in-memory representation of a pseudoFAT volume: the
// boot record, the redundant FAT tables, the flat root directory, and the
// cluster payload buffers. It owns all of that state for the lifetime of a
// session; the codec fills it in from a byte stream, the checker and cache
// validate and summarize it, and the defragmenter mutates it in place.
package image

import (
	"fmt"

	ferrors "github.com/pseudofat/fatdefrag/errors"
)

// FAT entry sentinels. Any other value is the index of the next cluster in
// a chain.
const (
	Unused   uint32 = 65535
	FileEnd  uint32 = 65534
	BadEntry uint32 = 65533
)

const (
	VolumeDescriptorSize = 251
	SignatureSize        = 4
	FileNameSize         = 13
	FileModSize          = 10

	// MaxRecoverableErrors bounds how many FAT divergences the checker's
	// Pass B will tolerate before demanding force-accept.
	MaxRecoverableErrors = 20

	// MinDefragFreeFraction is the denominator of the free-space fraction
	// required before defragmentation may start (1/10 == 10% free).
	MinDefragFreeFraction = 10
)

// BootRecord is the singleton header of a pseudoFAT image, created once and
// immutable afterwards except for RootDirectoryMaxEntriesCount, which grows
// as files are appended.
type BootRecord struct {
	VolumeDescriptor             [VolumeDescriptorSize]byte
	FATType                      int32
	FATCopies                    int32
	ClusterSize                  uint32
	RootDirectoryMaxEntriesCount int64
	ClusterCount                 uint32
	ReservedClusterCount         uint32
	Signature                    [SignatureSize]byte
}

// RealClusterCount returns the number of clusters available for allocation,
// i.e. the total minus the reserved tail.
func (b *BootRecord) RealClusterCount() uint32 {
	return b.ClusterCount - b.ReservedClusterCount
}

// RootEntry describes one file in the flat root directory.
type RootEntry struct {
	FileName     [FileNameSize]byte
	FileMod      [FileModSize]byte
	FileType     int16
	FileSize     int64
	FirstCluster uint32
}

// Name returns the entry's file name with trailing NUL bytes trimmed.
func (e *RootEntry) Name() string {
	n := 0
	for n < len(e.FileName) && e.FileName[n] != 0 {
		n++
	}
	return string(e.FileName[:n])
}

// SetName copies name into FileName, truncating it to fit and leaving a
// trailing NUL, mirroring the original's strncpy-into-fixed-buffer behavior.
func (e *RootEntry) SetName(name string) {
	var buf [FileNameSize]byte
	n := copy(buf[:], name)
	if n >= FileNameSize {
		n = FileNameSize - 1
	}
	buf[n] = 0
	e.FileName = buf
}

// Image is the fully loaded pseudoFAT volume: boot record, FATCopies
// parallel FAT tables (each ClusterCount entries long, copy 0 authoritative),
// the root directory, and the cluster payload buffers (RealClusterCount of
// them, addressed in [0, RealClusterCount)).
type Image struct {
	Boot      BootRecord
	FATTables [][]uint32
	RootDir   []RootEntry
	Clusters  [][]byte
}

// New builds an empty image from the given create-mode parameters.
// VolumeDesc and signature are truncated/NUL-padded to their fixed widths.
// FATType must be one of 12, 16 or 32; it is purely informational, since
// FAT entries are always stored as 32-bit values regardless.
func New(
	volumeDesc string,
	fatType int32,
	fatCopies int32,
	clusterSize uint32,
	clusterCount uint32,
	reservedClusterCount uint32,
	signature string,
) (*Image, error) {
	if fatType != 12 && fatType != 16 && fatType != 32 {
		return nil, ferrors.ErrMalformedImage.WithMessage(
			fmt.Sprintf("fat_type must be one of {12, 16, 32}, got %d", fatType))
	}
	if fatCopies < 1 {
		return nil, ferrors.ErrMalformedImage.WithMessage("fat_copies must be >= 1")
	}
	if clusterSize == 0 {
		return nil, ferrors.ErrMalformedImage.WithMessage("cluster_size must be >= 1")
	}
	if reservedClusterCount > clusterCount {
		return nil, ferrors.ErrMalformedImage.WithMessage(
			"reserved_cluster_count exceeds cluster_count")
	}

	img := &Image{}
	copy(img.Boot.VolumeDescriptor[:], volumeDesc)
	copy(img.Boot.Signature[:], signature)
	img.Boot.FATType = fatType
	img.Boot.FATCopies = fatCopies
	img.Boot.ClusterSize = clusterSize
	img.Boot.ClusterCount = clusterCount
	img.Boot.ReservedClusterCount = reservedClusterCount
	img.Boot.RootDirectoryMaxEntriesCount = 0

	img.FATTables = make([][]uint32, fatCopies)
	for i := range img.FATTables {
		table := make([]uint32, clusterCount)
		for j := range table {
			table[j] = Unused
		}
		img.FATTables[i] = table
	}

	real := img.Boot.RealClusterCount()
	img.Clusters = make([][]byte, real)
	for i := range img.Clusters {
		img.Clusters[i] = make([]byte, clusterSize)
	}

	return img, nil
}

// RealClusterCount is a convenience forward to Boot.RealClusterCount.
func (img *Image) RealClusterCount() uint32 {
	return img.Boot.RealClusterCount()
}

// Chain walks FAT copy 0 starting at first, returning the ordered cluster
// indices up to but not including FileEnd. It stops and reports
// ErrChainCycle if the walk exceeds ClusterCount hops.
func (img *Image) Chain(first uint32) ([]uint32, error) {
	chain := make([]uint32, 0, 8)
	cur := first
	hops := uint32(0)
	for cur != FileEnd {
		chain = append(chain, cur)
		if int(cur) >= len(img.FATTables[0]) {
			return nil, ferrors.ErrInternalInvariant.WithMessage(
				fmt.Sprintf("cluster index %d out of range while walking chain", cur))
		}
		cur = img.FATTables[0][cur]
		hops++
		if hops > img.Boot.ClusterCount {
			return nil, ferrors.ErrChainCycle.WithMessage(
				fmt.Sprintf("chain starting at %d exceeds %d hops", first, img.Boot.ClusterCount))
		}
	}
	return chain, nil
}

// AppendFile adds a new root directory entry pointing at a freshly allocated
// chain covering data, returning the new entry's index. Even a zero-byte
// file consumes at least one cluster. Allocation picks the first UNUSED
// clusters it finds in copy 0, in ascending index order, and chains them
// front to back.
func (img *Image) AppendFile(name string, fileType int16, fileMod string, data []byte) (int, error) {
	clusterSize := int(img.Boot.ClusterSize)
	numClusters := len(data) / clusterSize
	if len(data)%clusterSize != 0 || numClusters == 0 {
		numClusters++
	}

	free := make([]uint32, 0, numClusters)
	real := img.RealClusterCount()
	for i := uint32(0); i < real && len(free) < numClusters; i++ {
		if img.FATTables[0][i] == Unused {
			free = append(free, i)
		}
	}
	if len(free) < numClusters {
		return -1, ferrors.ErrInsufficientFreeSpace.WithMessage(
			fmt.Sprintf("need %d free clusters, found %d", numClusters, len(free)))
	}

	for i, cluster := range free {
		var next uint32
		if i == len(free)-1 {
			next = FileEnd
		} else {
			next = free[i+1]
		}
		for _, table := range img.FATTables {
			table[cluster] = next
		}

		start := i * clusterSize
		end := start + clusterSize
		if end > len(data) {
			end = len(data)
		}
		if start < len(data) {
			copy(img.Clusters[cluster], data[start:end])
		}
	}

	entry := RootEntry{
		FileType:     fileType,
		FileSize:     int64(len(data)),
		FirstCluster: free[0],
	}
	entry.SetName(name)
	copy(entry.FileMod[:], fileMod)

	img.RootDir = append(img.RootDir, entry)
	img.Boot.RootDirectoryMaxEntriesCount = int64(len(img.RootDir))
	return len(img.RootDir) - 1, nil
}
