package cursormgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorIDPacking(t *testing.T) {
	id := makeCursorID(0xDEADBEEF, 0x12345678)
	require.Equal(t, uint32(0xDEADBEEF), id.Prefix())
	require.Equal(t, uint32(0x12345678), id.Suffix())

	// High-bit prefixes produce negative ids; the halves still round-trip.
	require.Less(t, int64(id), int64(0))

	require.Equal(t, NullCursorID, makeCursorID(0, 0))
	require.Equal(t, uint32(0), NullCursorID.Prefix())
	require.Equal(t, uint32(0), NullCursorID.Suffix())
}

func TestCursorIDNonZeroWithNonZeroSuffix(t *testing.T) {
	// Any nonzero suffix keeps the packed id away from the reserved null id,
	// whatever the prefix.
	for _, prefix := range []uint32{0, 1, 0xFFFFFFFF} {
		require.NotEqual(t, NullCursorID, makeCursorID(prefix, 1))
	}
}
