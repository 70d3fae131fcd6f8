package zmt_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockmt/zmt"
)

// TestLastBlockHintOverstatesActualSize exercises spec §8 scenario 6: the
// last block's size rarely lands on a 64KiB boundary, so the hint-derived
// output buffer is usually larger than what the codec actually produces.
func TestLastBlockHintOverstatesActualSize(t *testing.T) {
	// 2MiB + 160KiB: two full 1MiB blocks, then a short final block whose
	// size (160KiB) isn't a multiple of the 64KiB hint unit.
	src := randomCompressible(t, (2<<20)+(160<<10), 5)

	compressed := compress(t, src, zmt.Threads(1), zmt.BlockSize(1<<20))
	got := decompress(t, compressed, zmt.DThreads(1))
	require.Equal(t, src, got)

	d, err := zmt.NewDCtx(zmt.DThreads(1))
	require.NoError(t, err)
	defer d.Close()
	var out bytes.Buffer
	require.NoError(t, d.Decompress(zmt.FromReader(bytes.NewReader(compressed)), zmt.FromWriter(&out)))
	require.EqualValues(t, len(src), d.GetOutsize())
	require.EqualValues(t, 3, d.GetFrames())
}

func TestDecompressContextReusableAfterSuccess(t *testing.T) {
	src := randomCompressible(t, 512<<10, 6)
	compressed := compress(t, src, zmt.Threads(2), zmt.BlockSize(128<<10))

	d, err := zmt.NewDCtx(zmt.DThreads(2))
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 2; i++ {
		var out bytes.Buffer
		require.NoError(t, d.Decompress(zmt.FromReader(bytes.NewReader(compressed)), zmt.FromWriter(&out)))
		require.Equal(t, src, out.Bytes())
	}
}

func TestDestroyedContextRejectsCalls(t *testing.T) {
	c, err := zmt.NewCCtx()
	require.NoError(t, err)
	require.NoError(t, c.Close())
	err = c.Compress(zmt.FromReader(bytes.NewReader(nil)), zmt.FromWriter(&bytes.Buffer{}))
	require.Error(t, err)
	require.Equal(t, zmt.ErrParameterUnsupported, zmt.KindOf(err))
}

func TestEmptyInputProducesEmptyOutput(t *testing.T) {
	compressed := compress(t, nil, zmt.Threads(4), zmt.BlockSize(1<<20))
	require.Empty(t, compressed)
	got := decompress(t, compressed, zmt.DThreads(4))
	require.Empty(t, got)
}
