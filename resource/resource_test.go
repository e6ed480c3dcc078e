package resource_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorwave/shsynth/butterfly"
	"github.com/tensorwave/shsynth/resource"
	"github.com/tensorwave/shsynth/resource/testresource"
)

func TestLoadFromBytesRoundTrip(t *testing.T) {
	b := testresource.New(8, 8, 16)
	b.SetBlob(0, false, butterfly.EncodeZero())
	b.SetBlob(2, true, butterfly.EncodeDenseLeaf(0, 1, butterfly.EncodeDenseMatrixTail(1, 1, []float64{3.5})))

	f, err := resource.FromBytes(b.Bytes())
	require.NoError(t, err)
	require.Equal(t, 8, f.LMax)
	require.Equal(t, 8, f.MMax)
	require.Equal(t, 16, f.NSide)

	require.True(t, f.HasBlob(0, false))
	require.False(t, f.HasBlob(0, true))
	require.True(t, f.HasBlob(2, true))
	require.False(t, f.HasBlob(1, false))

	blob := f.Blob(2, true)
	require.NotEmpty(t, blob)

	digest, ok := f.BlobDigest(2, true)
	require.True(t, ok)
	require.NotEqual(t, [32]byte{}, digest)

	_, ok = f.BlobDigest(1, false)
	require.False(t, ok)
}

func TestLoadRejectsTruncatedHeader(t *testing.T) {
	_, err := resource.FromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}
