// Package codec serializes and deserializes a pseudoFAT image to and from a
// flat byte stream: boot record, then each FAT copy, then the root
// directory, then the cluster payloads, in that order and with no padding
// beyond what the fixed-width fields imply. Integers are written in the
// host's native byte order; the format is not meant to be portable across
// machines with different endianness.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/noxer/bytewriter"

	ferrors "github.com/pseudofat/fatdefrag/errors"
	"github.com/pseudofat/fatdefrag/image"
)

// byteOrder is the wire order used for every integer field. The format is
// host-native by design, so this is the one spot that would change if this
// package were ported to a big-endian host.
var byteOrder = binary.NativeEndian

// Encode writes img to w in the layout described in the package doc.
func Encode(img *image.Image, w io.Writer) error {
	if err := encodeBootRecord(&img.Boot, w); err != nil {
		return err
	}

	for i, table := range img.FATTables {
		if err := binary.Write(w, byteOrder, table); err != nil {
			return ferrors.ErrIO.WrapError(fmt.Errorf("FAT copy %d: %w", i, err))
		}
	}

	for i := range img.RootDir {
		entry := img.RootDir[i]
		if err := binary.Write(w, byteOrder, &entry); err != nil {
			return ferrors.ErrIO.WrapError(fmt.Errorf("root entry %d: %w", i, err))
		}
	}

	for i, cluster := range img.Clusters {
		if _, err := w.Write(cluster); err != nil {
			return ferrors.ErrIO.WrapError(fmt.Errorf("cluster %d: %w", i, err))
		}
	}

	return nil
}

// encodeBootRecord builds the boot record in a bounded in-memory buffer
// before committing it to the stream, so a short write is caught as a
// MalformedImage-shaped programming error rather than silently truncating
// the image.
func encodeBootRecord(boot *image.BootRecord, w io.Writer) error {
	size := binary.Size(*boot)
	buf := make([]byte, size)
	bw := bytewriter.New(buf)

	if err := binary.Write(bw, byteOrder, boot); err != nil {
		return ferrors.ErrMalformedImage.WrapError(fmt.Errorf("encoding boot record: %w", err))
	}
	if _, err := w.Write(buf); err != nil {
		return ferrors.ErrIO.WrapError(fmt.Errorf("writing boot record: %w", err))
	}
	return nil
}

// Decode reads a pseudoFAT image from r. It validates the boot record's
// informational fat_type and cluster_size before trusting the rest of the
// stream's shape, and reports MalformedImage on any short read.
func Decode(r io.Reader) (*image.Image, error) {
	img := &image.Image{}

	if err := binary.Read(r, byteOrder, &img.Boot); err != nil {
		return nil, ferrors.ErrMalformedImage.WrapError(fmt.Errorf("reading boot record: %w", err))
	}

	if err := validateBootRecord(&img.Boot); err != nil {
		return nil, err
	}

	img.FATTables = make([][]uint32, img.Boot.FATCopies)
	for i := range img.FATTables {
		table := make([]uint32, img.Boot.ClusterCount)
		if err := binary.Read(r, byteOrder, table); err != nil {
			return nil, ferrors.ErrMalformedImage.WrapError(
				fmt.Errorf("reading FAT copy %d: %w", i, err))
		}
		img.FATTables[i] = table
	}

	img.RootDir = make([]image.RootEntry, img.Boot.RootDirectoryMaxEntriesCount)
	for i := range img.RootDir {
		if err := binary.Read(r, byteOrder, &img.RootDir[i]); err != nil {
			return nil, ferrors.ErrMalformedImage.WrapError(
				fmt.Errorf("reading root entry %d: %w", i, err))
		}
	}

	real := img.Boot.RealClusterCount()
	img.Clusters = make([][]byte, real)
	for i := range img.Clusters {
		buf := make([]byte, img.Boot.ClusterSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, ferrors.ErrMalformedImage.WrapError(
				fmt.Errorf("reading cluster %d: %w", i, err))
		}
		img.Clusters[i] = buf
	}

	return img, nil
}

func validateBootRecord(boot *image.BootRecord) error {
	if boot.FATType != 12 && boot.FATType != 16 && boot.FATType != 32 {
		return ferrors.ErrMalformedImage.WithMessage(
			fmt.Sprintf("fat_type must be one of {12, 16, 32}, got %d", boot.FATType))
	}
	if boot.FATCopies < 1 {
		return ferrors.ErrMalformedImage.WithMessage("fat_copies must be >= 1")
	}
	if boot.ClusterSize == 0 {
		return ferrors.ErrMalformedImage.WithMessage("cluster_size must be >= 1")
	}
	if boot.ReservedClusterCount > boot.ClusterCount {
		return ferrors.ErrMalformedImage.WithMessage(
			"reserved_cluster_count exceeds cluster_count")
	}
	if boot.RootDirectoryMaxEntriesCount < 0 {
		return ferrors.ErrMalformedImage.WithMessage(
			"root_directory_max_entries_count must be >= 0")
	}
	return nil
}
