package dump_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pseudofat/fatdefrag/dump"
	"github.com/pseudofat/fatdefrag/internal/fstesting"
)

func TestSprint_LabelsFileClustersAndGapsAndBadBlocks(t *testing.T) {
	img := fstesting.NewImage(t, 1, 16, 8, 0)
	fstesting.PlaceFile(t, img, "a.bin", []uint32{0, 1}, 'a')
	fstesting.MarkBad(img, 2)

	out, err := dump.Sprint(img)
	require.NoError(t, err)

	require.Contains(t, out, "A0")
	require.Contains(t, out, "A1")
	require.Contains(t, out, "!")
	require.Contains(t, out, "_")
}

func TestSprint_SecondFileGetsNextLetter(t *testing.T) {
	img := fstesting.NewImage(t, 1, 16, 8, 0)
	fstesting.PlaceFile(t, img, "a.bin", []uint32{0}, 'a')
	fstesting.PlaceFile(t, img, "b.bin", []uint32{1}, 'b')

	out, err := dump.Sprint(img)
	require.NoError(t, err)

	require.Contains(t, out, "A0")
	require.Contains(t, out, "B0")
}

func TestSprint_WrapsEveryColumnsClusters(t *testing.T) {
	img := fstesting.NewImage(t, 1, 16, 32, 0)

	out, err := dump.Sprint(img)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
}
