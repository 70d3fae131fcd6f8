package codec_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockmt/zmt/codec"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"zstd", "s2"} {
		c, ok := codec.ByName(name)
		require.True(t, ok, name)
		require.Equal(t, name, c.Name())
	}
	_, ok := codec.ByName("nonexistent")
	require.False(t, ok)
}

func testCodecRoundTrip(t *testing.T, c codec.Codec) {
	t.Helper()
	min, max := c.LevelRange()
	require.LessOrEqual(t, min, max)

	src := make([]byte, 64*1024)
	rand.New(rand.NewSource(1)).Read(src)
	// Make it compressible too.
	copy(src[32*1024:], bytes.Repeat([]byte{0x42}, 16*1024))

	ws, err := c.NewWorkerState(min)
	require.NoError(t, err)
	defer ws.Close()

	budget := ws.MaxCompressedSize(len(src))
	dst := make([]byte, 0, budget)
	encoded, err := ws.EncodeBlock(dst, src)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	out, err := ws.DecodeBlock(nil, encoded)
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestZstdRoundTrip(t *testing.T) {
	testCodecRoundTrip(t, codec.NewZstd())
}

func TestS2RoundTrip(t *testing.T) {
	testCodecRoundTrip(t, codec.NewS2())
}

func TestEncodeBlockRespectsBudget(t *testing.T) {
	c := codec.NewZstd()
	ws, err := c.NewWorkerState(1)
	require.NoError(t, err)
	defer ws.Close()

	src := make([]byte, 1<<20)
	rand.New(rand.NewSource(2)).Read(src)

	tiny := make([]byte, 0, 4)
	_, err = ws.EncodeBlock(tiny, src)
	require.ErrorIs(t, err, codec.ErrBudgetExceeded)
}

func TestFamilyMarkersDistinct(t *testing.T) {
	require.NotEqual(t, codec.NewZstd().FamilyMarker(), codec.NewS2().FamilyMarker())
}
