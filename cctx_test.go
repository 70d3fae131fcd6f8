package zmt_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockmt/zmt"
	"github.com/blockmt/zmt/codec"
)

func randomCompressible(t *testing.T, n int, seed int64) []byte {
	t.Helper()
	data := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(data)
	for i := 0; i < n; i += 4096 {
		end := i + 512
		if end > n {
			end = n
		}
		for j := i; j < end; j++ {
			data[j] = 0x42
		}
	}
	return data
}

func compress(t *testing.T, src []byte, opts ...zmt.CCtxOption) []byte {
	t.Helper()
	c, err := zmt.NewCCtx(opts...)
	require.NoError(t, err)
	defer c.Close()
	var out bytes.Buffer
	err = c.Compress(zmt.FromReader(bytes.NewReader(src)), zmt.FromWriter(&out))
	require.NoError(t, err)
	return out.Bytes()
}

func decompress(t *testing.T, src []byte, opts ...zmt.DCtxOption) []byte {
	t.Helper()
	d, err := zmt.NewDCtx(opts...)
	require.NoError(t, err)
	defer d.Close()
	var out bytes.Buffer
	err = d.Decompress(zmt.FromReader(bytes.NewReader(src)), zmt.FromWriter(&out))
	require.NoError(t, err)
	return out.Bytes()
}

func TestRoundTripVaryingThreadsAndBlockSize(t *testing.T) {
	src := randomCompressible(t, 10<<20, 1)
	for _, tc := range []struct {
		threadsC, threadsD, blockSize int
	}{
		{1, 1, 1 << 20},
		{4, 1, 1 << 20},
		{4, 4, 1 << 20},
		{8, 3, 256 << 10},
	} {
		compressed := compress(t, src, zmt.Threads(tc.threadsC), zmt.BlockSize(tc.blockSize))
		got := decompress(t, compressed, zmt.DThreads(tc.threadsD))
		require.Equal(t, src, got)
	}
}

func TestCompressEmitsSkippableMagicAndFrameCount(t *testing.T) {
	src := randomCompressible(t, 10<<20, 2)
	compressed := compress(t, src, zmt.Threads(4), zmt.BlockSize(1<<20))
	require.Equal(t, []byte{0x50, 0x2A, 0x4D, 0x18}, compressed[:4])

	c, err := zmt.NewCCtx(zmt.Threads(4), zmt.BlockSize(1<<20))
	require.NoError(t, err)
	defer c.Close()
	var out bytes.Buffer
	require.NoError(t, c.Compress(zmt.FromReader(bytes.NewReader(src)), zmt.FromWriter(&out)))
	require.EqualValues(t, 10, c.GetFrames())
	require.EqualValues(t, len(src), c.GetInsize())
	require.EqualValues(t, out.Len(), c.GetOutsize())
}

func TestSmallInputRoundTrip(t *testing.T) {
	compressed := compress(t, []byte("hello"), zmt.Threads(8), zmt.BlockSize(1<<20))
	require.Equal(t, []byte{0x50, 0x2A, 0x4D, 0x18}, compressed[:4])
	got := decompress(t, compressed, zmt.DThreads(8))
	require.Equal(t, "hello", string(got))
}

func TestFallbackDecodesSingleThreadedZstdStream(t *testing.T) {
	z := codec.NewZstd()
	ws, err := z.NewWorkerState(3)
	require.NoError(t, err)
	defer ws.Close()

	src := randomCompressible(t, 64<<10, 3)
	encoded, err := ws.EncodeBlock(make([]byte, 0, ws.MaxCompressedSize(len(src))), src)
	require.NoError(t, err)

	got := decompress(t, encoded, zmt.WithDCodec(codec.NewZstd()))
	require.Equal(t, src, got)
}

func TestUnrecognizedStreamIsDataError(t *testing.T) {
	d, err := zmt.NewDCtx()
	require.NoError(t, err)
	defer d.Close()
	var out bytes.Buffer
	err = d.Decompress(zmt.FromReader(bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05})), zmt.FromWriter(&out))
	require.Error(t, err)
	require.Equal(t, zmt.ErrDataError, zmt.KindOf(err))
}

func TestCancellationFromReadCallback(t *testing.T) {
	src := randomCompressible(t, 4<<20, 4)
	reads := 0
	readFn := func(buf []byte) (int, int) {
		reads++
		if reads == 3 {
			return 0, zmt.CodeCanceled
		}
		off := (reads - 1) * len(buf)
		if off >= len(src) {
			return 0, zmt.CodeOK
		}
		n := copy(buf, src[off:])
		return n, zmt.CodeOK
	}

	c, err := zmt.NewCCtx(zmt.Threads(1), zmt.BlockSize(1<<20))
	require.NoError(t, err)
	defer c.Close()
	var out bytes.Buffer
	err = c.Compress(readFn, zmt.FromWriter(&out))
	require.Error(t, err)
	require.Equal(t, zmt.ErrCanceled, zmt.KindOf(err))
	require.EqualValues(t, 2, c.GetFrames())
}

func TestPoisonedContextRejectsReuse(t *testing.T) {
	c, err := zmt.NewCCtx(zmt.Threads(1))
	require.NoError(t, err)
	defer c.Close()

	failRead := func([]byte) (int, int) { return 0, zmt.CodeFail }
	err = c.Compress(failRead, zmt.FromWriter(&bytes.Buffer{}))
	require.Error(t, err)

	err = c.Compress(zmt.FromReader(bytes.NewReader([]byte("x"))), zmt.FromWriter(&bytes.Buffer{}))
	require.Error(t, err)
}

func TestInvalidThreadsRejected(t *testing.T) {
	_, err := zmt.NewCCtx(zmt.Threads(0))
	require.Error(t, err)
	require.Equal(t, zmt.ErrParameterUnsupported, zmt.KindOf(err))

	_, err = zmt.NewCCtx(zmt.Threads(zmt.MaxThreads + 1))
	require.Error(t, err)
}

func TestInvalidLevelRejected(t *testing.T) {
	_, err := zmt.NewCCtx(zmt.WithCodec(codec.NewZstd()), zmt.Level(100))
	require.Error(t, err)
	require.Equal(t, zmt.ErrParameterUnsupported, zmt.KindOf(err))
}
