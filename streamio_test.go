package zmt_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockmt/zmt"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	src := randomCompressible(t, 3<<20, 7)

	c, err := zmt.NewCCtx(zmt.Threads(4), zmt.BlockSize(512<<10))
	require.NoError(t, err)
	defer c.Close()

	var compressed bytes.Buffer
	w := zmt.NewWriter(c, &compressed)
	n, err := io.Copy(w, bytes.NewReader(src))
	require.NoError(t, err)
	require.EqualValues(t, len(src), n)
	require.NoError(t, w.Close())

	d, err := zmt.NewDCtx(zmt.DThreads(4))
	require.NoError(t, err)
	defer d.Close()

	r := zmt.NewReader(d, bytes.NewReader(compressed.Bytes()))
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, src, got)
}

func TestReaderSurfacesDecompressError(t *testing.T) {
	d, err := zmt.NewDCtx()
	require.NoError(t, err)
	defer d.Close()

	r := zmt.NewReader(d, bytes.NewReader([]byte{0, 0, 0, 0}))
	_, err = io.ReadAll(r)
	require.Error(t, err)
}
