package envelope_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockmt/zmt/internal/envelope"
)

func TestShortRoundTrip(t *testing.T) {
	buf := envelope.EncodeShort(nil, 12345)
	require.Len(t, buf, envelope.ShortHeaderSize)
	h, err := envelope.Parse(buf)
	require.NoError(t, err)
	require.False(t, h.Long)
	require.EqualValues(t, 12345, h.PayloadLen)
	require.Equal(t, envelope.ShortHeaderSize, h.Size())
}

func TestLongRoundTrip(t *testing.T) {
	buf := envelope.EncodeLong(nil, 777, 0x464c, 3)
	require.Len(t, buf, envelope.LongHeaderSize)
	h, err := envelope.Parse(buf)
	require.NoError(t, err)
	require.True(t, h.Long)
	require.EqualValues(t, 777, h.PayloadLen)
	require.EqualValues(t, 0x464c, h.Family)
	require.EqualValues(t, 3, h.HintUnits)
	require.Equal(t, 3*envelope.HintUnit, h.UncompressedHint())
}

func TestParseCoreSplitAcrossPrefetchedMagic(t *testing.T) {
	full := envelope.EncodeLong(nil, 42, 7, 2)
	var core [8]byte
	copy(core[:], full[4:12])
	isLong, payloadLen, err := envelope.ParseCore(envelope.Magic, core)
	require.NoError(t, err)
	require.True(t, isLong)
	require.EqualValues(t, 42, payloadLen)

	var tail [4]byte
	copy(tail[:], full[12:16])
	family, hintUnits := envelope.ParseTail(tail)
	require.EqualValues(t, 7, family)
	require.EqualValues(t, 2, hintUnits)
}

func TestParseBadMagic(t *testing.T) {
	buf := envelope.EncodeShort(nil, 1)
	buf[0] ^= 0xff
	_, err := envelope.Parse(buf)
	require.ErrorIs(t, err, envelope.ErrBadMagic)
}

func TestParseBadLength(t *testing.T) {
	buf := envelope.EncodeShort(nil, 1)
	buf[4] = 9 // neither 4 nor 8
	_, err := envelope.Parse(buf)
	require.ErrorIs(t, err, envelope.ErrBadLength)
}

func TestParseShortBuffer(t *testing.T) {
	_, err := envelope.Parse(make([]byte, 4))
	require.Error(t, err)
}

func TestCheckFamily(t *testing.T) {
	h := envelope.Header{Long: true, Family: 0x464c}
	require.NoError(t, envelope.CheckFamily(h, 0x464c))
	require.Error(t, envelope.CheckFamily(h, 0x0001))
	// short-form headers never fail the family check.
	require.NoError(t, envelope.CheckFamily(envelope.Header{}, 0x0001))
}

func TestHintUnitsFor(t *testing.T) {
	require.EqualValues(t, 1, envelope.HintUnitsFor(1, 1<<20, true))
	require.EqualValues(t, 2, envelope.HintUnitsFor(envelope.HintUnit+1, 1<<20, true))
	require.EqualValues(t, 16, envelope.HintUnitsFor(0, 1<<20, false))
	require.EqualValues(t, 0, envelope.HintUnitsFor(0, 0, true))
}
