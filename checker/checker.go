// Package checker validates a pseudoFAT image's structural integrity across
// its redundant FAT copies before any other component trusts it: a per-file
// chain cross-check (Pass A) that can repair badblock divergences in place,
// followed by a global divergence count (Pass B) that only reports.
package checker

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	ferrors "github.com/pseudofat/fatdefrag/errors"
	"github.com/pseudofat/fatdefrag/image"
)

// Options configures how Check tolerates divergence between FAT copies.
type Options struct {
	// AllowBadblockMatching enables Pass A to repair a chain cluster where
	// exactly one FAT copy marks it BAD and the others agree on a real
	// successor index.
	AllowBadblockMatching bool
	// ForceAcceptRecoverableErrors allows Pass B to succeed even past
	// image.MaxRecoverableErrors divergences.
	ForceAcceptRecoverableErrors bool
}

// Check runs both passes against img, mutating FAT copies in place only
// during Pass A badblock recovery. It returns the aggregate of every
// recoverable Pass B divergence as a *multierror.Error (nil if there were
// none) alongside a fatal error, if any.
func Check(img *image.Image, opts Options) (*multierror.Error, error) {
	if err := checkChains(img, opts); err != nil {
		return nil, err
	}

	divergences, err := checkGlobalDivergence(img, opts)
	if err != nil {
		return divergences, err
	}

	return divergences, nil
}

// checkChains is Pass A: for each root entry, walk the chain in copy 0 while
// simultaneously inspecting every other copy at the same index.
func checkChains(img *image.Image, opts Options) error {
	for i := range img.RootDir {
		if err := checkChainEverywhere(img, img.RootDir[i].FirstCluster, opts); err != nil {
			if errors.Is(err, ferrors.ErrChainInconsistent) {
				return ferrors.ErrChainInconsistent.WrapError(
					fmt.Errorf("file %q (entry %d): %w", img.RootDir[i].Name(), i, err))
			}
			return err
		}
	}
	return nil
}

func checkChainEverywhere(img *image.Image, start uint32, opts Options) error {
	cur := start
	hops := uint32(0)
	fatCopies := len(img.FATTables)

	for cur != image.FileEnd {
		if int(cur) >= len(img.FATTables[0]) {
			return ferrors.ErrInternalInvariant.WithMessage(
				fmt.Sprintf("cluster index %d out of range", cur))
		}

		for copyIdx := 1; copyIdx < fatCopies; copyIdx++ {
			primary := img.FATTables[0][cur]
			other := img.FATTables[copyIdx][cur]
			if primary == other {
				continue
			}

			primaryBad := primary == image.BadEntry
			otherBad := other == image.BadEntry
			if !primaryBad && !otherBad {
				// Neither side is BAD; Pass A doesn't repair this case.
				// Pass B will record it as a recoverable divergence instead.
				continue
			}

			if !opts.AllowBadblockMatching {
				return ferrors.ErrChainInconsistent.WithMessage(
					fmt.Sprintf("cluster %d: copy 0 has %d, copy %d has %d", cur, primary, copyIdx, other))
			}

			if !primaryBad {
				img.FATTables[copyIdx][cur] = primary
			} else {
				img.FATTables[0][cur] = other
			}
		}

		if img.FATTables[0][cur] == image.BadEntry {
			return ferrors.ErrUnrecoverableBadBlock.WithMessage(
				fmt.Sprintf("cluster %d is BAD in every FAT copy", cur))
		}

		cur = img.FATTables[0][cur]
		hops++
		if hops > img.Boot.ClusterCount {
			return ferrors.ErrChainCycle.WithMessage(
				fmt.Sprintf("chain starting at %d exceeds %d hops", start, img.Boot.ClusterCount))
		}
	}

	return nil
}

// checkGlobalDivergence is Pass B: for every cluster index and every
// non-primary copy, count positions where it disagrees with copy 0. This
// catches "lost" clusters that no file chain references. It never mutates
// the image.
func checkGlobalDivergence(img *image.Image, opts Options) (*multierror.Error, error) {
	var result *multierror.Error
	count := 0

	for i := uint32(0); i < img.Boot.ClusterCount; i++ {
		for copyIdx := 1; copyIdx < len(img.FATTables); copyIdx++ {
			if img.FATTables[0][i] == img.FATTables[copyIdx][i] {
				continue
			}

			result = multierror.Append(result, fmt.Errorf(
				"recoverable inconsistency at cluster %d on FAT copy %d (copy 0 has %d, copy %d has %d)",
				i, copyIdx, img.FATTables[0][i], copyIdx, img.FATTables[copyIdx][i]))
			count++

			if count > image.MaxRecoverableErrors && !opts.ForceAcceptRecoverableErrors {
				return result, ferrors.ErrTooManyDivergences.WithMessage(
					fmt.Sprintf("%d divergences exceeds limit of %d", count, image.MaxRecoverableErrors))
			}
		}
	}

	return result, nil
}
