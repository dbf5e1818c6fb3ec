// Package dump renders a human-readable ASCII map of a pseudoFAT image's
// cluster layout, strictly a diagnostic: nothing here is read back by any
// other component.
package dump

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pseudofat/fatdefrag/image"
)

// fileLetters labels files A-Z, then a-z, then 0-9, then a fixed punctuation
// tail, wrapping to '?' once exhausted.
const fileLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789<>$!+-*/°~#&@{}[]|^()=_;:§'%"

const columns = 16

// Write renders img's cluster map to w, 16 cells per row. A cluster holding
// file data is labeled with its file's letter followed by its position
// within that file's chain; BAD clusters render as '!'; UNUSED clusters
// render as '_'.
func Write(img *image.Image, w io.Writer) error {
	labels, cellWidth, err := buildLabels(img)
	if err != nil {
		return err
	}

	var row strings.Builder
	for k := uint32(0); k < img.Boot.ClusterCount; k++ {
		cell := cellFor(img, labels, k)
		row.WriteString(cell)
		for i := len(cell); i < cellWidth; i++ {
			row.WriteByte(' ')
		}

		if (k+1)%columns == 0 {
			row.WriteByte('\n')
			if _, err := io.WriteString(w, row.String()); err != nil {
				return err
			}
			row.Reset()
		}
	}
	if row.Len() > 0 {
		row.WriteByte('\n')
		if _, err := io.WriteString(w, row.String()); err != nil {
			return err
		}
	}
	return nil
}

func cellFor(img *image.Image, labels map[uint32]string, k uint32) string {
	if label, ok := labels[k]; ok {
		return label
	}
	if int(k) < len(img.FATTables[0]) && img.FATTables[0][k] == image.BadEntry {
		return "!"
	}
	return "_"
}

// buildLabels assigns every cluster in every file's chain a "<letter><index>"
// label and returns the widest label's length (plus one for spacing), so
// the grid stays column-aligned regardless of how large the longest chain
// gets.
func buildLabels(img *image.Image) (map[uint32]string, int, error) {
	labels := make(map[uint32]string)
	maxLen := 1

	for i := range img.RootDir {
		letter := letterFor(i)
		chain, err := img.Chain(img.RootDir[i].FirstCluster)
		if err != nil {
			return nil, 0, err
		}
		for j, cluster := range chain {
			label := letter + strconv.Itoa(j)
			labels[cluster] = label
			if len(label) > maxLen {
				maxLen = len(label)
			}
		}
	}

	return labels, maxLen + 1, nil
}

func letterFor(fileIndex int) string {
	letters := []rune(fileLetters)
	if fileIndex < len(letters) {
		return string(letters[fileIndex])
	}
	return "?"
}

// Sprint is a convenience wrapper around Write for callers that just want
// the map as a string (e.g. tests).
func Sprint(img *image.Image) (string, error) {
	var b strings.Builder
	if err := Write(img, &b); err != nil {
		return "", fmt.Errorf("dumping image: %w", err)
	}
	return b.String(), nil
}
