// Package defrag implements the concurrent defragmenter: a pool of workers
// that relocate clusters until every file occupies a contiguous, aligned
// run, coordinating over a single shared image via two mutexes and a
// cooperative reservation protocol: assignMutex guards the work queue,
// moveMutex serializes moveCluster. A per-supercluster or per-file-entry
// lock array would add ordering hazards without any stronger guarantee
// than this single global move-lock, so this package doesn't use one.
package defrag

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/pseudofat/fatdefrag/cache"
	ferrors "github.com/pseudofat/fatdefrag/errors"
	"github.com/pseudofat/fatdefrag/image"
)

// Options configures a defragmentation run.
type Options struct {
	// WorkerCount is the number of worker goroutines to spawn, 1-16. Values
	// outside that range fall back to 1.
	WorkerCount int
}

func (o Options) workerCount() int {
	if o.WorkerCount < 1 || o.WorkerCount > 16 {
		return 1
	}
	return o.WorkerCount
}

// Run defragments img using the cluster chains and base offsets precomputed
// in c. It mutates img's FAT tables, cluster payload pointers and root
// directory in place; on error the image must not be persisted, since no
// transactional rollback is attempted.
func Run(img *image.Image, c *cache.Cache, opts Options) error {
	real := img.RealClusterCount()
	required := real / image.MinDefragFreeFraction
	if c.FreeClustersCount < required {
		return ferrors.ErrInsufficientFreeSpace.WithMessage(
			fmt.Sprintf("have %d free clusters, need at least %d (%d%% of %d)",
				c.FreeClustersCount, required, 100/image.MinDefragFreeFraction, real))
	}

	owner := buildOwnerIndex(c.Chains)
	q := newWorkQueue(c.OccupiedWorkQueue)
	moveMu := &sync.Mutex{}

	workerCount := opts.workerCount()
	var wg sync.WaitGroup
	errs := make(chan error, workerCount)

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runWorker(img, c, owner, q, moveMu); err != nil {
				q.Abort()
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ownerInfo records which file and chain offset a cluster index belonged to
// when the cache was built. This is a static fact: a cluster's physical
// index only ever leaves its pre-defrag identity behind once it has been
// relocated by moveCluster.
type ownerInfo struct {
	file   int
	offset int
}

func buildOwnerIndex(chains [][]uint32) map[uint32]ownerInfo {
	owner := make(map[uint32]ownerInfo)
	for i, chain := range chains {
		for j, cluster := range chain {
			owner[cluster] = ownerInfo{file: i, offset: j}
		}
	}
	return owner
}

// runWorker drains the shared work queue, resolving one entry (and any
// blockers it transitively uncovers) at a time, until the queue reports it
// is exhausted.
func runWorker(img *image.Image, c *cache.Cache, owner map[uint32]ownerInfo, q *workQueue, moveMu *sync.Mutex) error {
	for {
		entry, ok := q.Pop()
		if !ok {
			return nil
		}
		if err := resolve(img, c, owner, q, moveMu, entry); err != nil {
			return err
		}
	}
}

// resolve drives one cluster to its aligned position, recursively taking
// over whatever blocks it along the way. entry is already checked out of
// the queue (in-flight) when this is called.
func resolve(img *image.Image, c *cache.Cache, owner map[uint32]ownerInfo, q *workQueue, moveMu *sync.Mutex, entry uint32) error {
	for {
		dest, err := alignedPosition(img, c, owner, entry)
		if err != nil {
			return err
		}

		if entry == dest {
			q.Discard()
			return nil
		}

		moveMu.Lock()
		destFree := img.FATTables[0][dest] == image.Unused
		if destFree {
			moveCluster(img, entry, dest)
		}
		moveMu.Unlock()

		if destFree {
			q.Discard()
			return nil
		}

		if q.Reserve(dest) {
			// Unwind the occupancy chain: put entry back for later and
			// immediately take over processing its blocker.
			q.PushBack(entry)
			entry = dest
			continue
		}

		// Someone else already owns dest; back off and let them resolve it.
		q.PushBack(entry)
		runtime.Gosched()
		return nil
	}
}

// alignedPosition locates the file and chain offset entry belonged to at
// cache time, then returns file_base_offset[i] + j, advancing past any BAD
// positions in the target range the same way cache.Build's base-offset
// sweep does.
func alignedPosition(img *image.Image, c *cache.Cache, owner map[uint32]ownerInfo, entry uint32) (uint32, error) {
	own, ok := owner[entry]
	if !ok {
		return 0, ferrors.ErrInternalInvariant.WithMessage(
			fmt.Sprintf("cluster %d has no recorded chain membership", entry))
	}

	base := c.FileBaseOffset[own.file]
	real := img.RealClusterCount()
	table0 := img.FATTables[0]

	pos := base
	consumed := 0
	for {
		if pos >= real {
			return 0, ferrors.ErrInternalInvariant.WithMessage(
				fmt.Sprintf("aligned position for cluster %d ran past the end of the image", entry))
		}
		nonBad := table0[pos] != image.BadEntry
		if nonBad && consumed == own.offset {
			return pos, nil
		}
		if nonBad {
			consumed++
		}
		pos++
	}
}

// moveCluster relocates the cluster payload at source to dest, rewriting
// every FAT copy's linkage and any root entry pointing at source. Callers
// must hold moveMu.
func moveCluster(img *image.Image, source, dest uint32) {
	if pred, found := findPredecessor(img, source); found {
		for _, table := range img.FATTables {
			table[pred] = dest
		}
	}

	img.Clusters[source], img.Clusters[dest] = img.Clusters[dest], img.Clusters[source]

	for _, table := range img.FATTables {
		table[dest] = table[source]
		table[source] = image.Unused
	}

	for i := range img.RootDir {
		if img.RootDir[i].FirstCluster == source {
			img.RootDir[i].FirstCluster = dest
			break
		}
	}
}

// findPredecessor does a linear scan of FAT copy 0 for the (unique) cluster
// pointing at source. moveMutex already serializes every call, so this
// cost is paid with the lock held rather than contended; a reverse index
// would trade memory for a cheaper lookup if that cost ever mattered.
func findPredecessor(img *image.Image, source uint32) (uint32, bool) {
	table0 := img.FATTables[0]
	for p := uint32(0); p < img.RealClusterCount(); p++ {
		if table0[p] == source {
			return p, true
		}
	}
	return 0, false
}
