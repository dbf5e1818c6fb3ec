package codec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/pseudofat/fatdefrag/codec"
	"github.com/pseudofat/fatdefrag/image"
)

func buildSampleImage(t *testing.T) *image.Image {
	t.Helper()
	img, err := image.New("sample volume", 12, 2, 32, 8, 0, "OK")
	require.NoError(t, err)

	_, err = img.AppendFile("hello.txt", 1, "rwx", []byte("hello, pseudoFAT"))
	require.NoError(t, err)
	return img
}

// TestRoundTrip checks that decode(encode(image)) reproduces image exactly.
func TestRoundTrip(t *testing.T) {
	img := buildSampleImage(t)

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(img, &buf))

	decoded, err := codec.Decode(&buf)
	require.NoError(t, err)

	require.Equal(t, img.Boot, decoded.Boot)
	require.Equal(t, img.FATTables, decoded.FATTables)
	require.Equal(t, img.RootDir, decoded.RootDir)
	require.Equal(t, img.Clusters, decoded.Clusters)
}

func TestRoundTrip_ThroughInMemoryStream(t *testing.T) {
	img := buildSampleImage(t)

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(img, &buf))

	stream := bytesextra.NewReadWriteSeeker(buf.Bytes())
	decoded, err := codec.Decode(stream)
	require.NoError(t, err)
	require.Equal(t, img.RootDir[0].Name(), decoded.RootDir[0].Name())
}

func TestDecode_RejectsBadFATType(t *testing.T) {
	img := buildSampleImage(t)
	img.Boot.FATType = 7

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&image.Image{
		Boot:      img.Boot,
		FATTables: img.FATTables,
		RootDir:   img.RootDir,
		Clusters:  img.Clusters,
	}, &buf))

	_, err := codec.Decode(&buf)
	require.Error(t, err)
}

func TestDecode_RejectsTruncatedStream(t *testing.T) {
	img := buildSampleImage(t)

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(img, &buf))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-10])
	_, err := codec.Decode(truncated)
	require.Error(t, err)
}
