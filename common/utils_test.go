package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x690B9A9E9aa1C9dB991C7721a92d351Db4FaC990")
	require.NoError(t, err)
	require.Equal(t, "0x690b9a9e9aa1c9db991c7721a92d351db4fac990", addr)

	_, err = ParseAddress("0x1234")
	require.Error(t, err)

	_, err = ParseAddress("not-an-address")
	require.Error(t, err)
}

func TestWeiToEther(t *testing.T) {
	require.Equal(t, 1.0, WeiToEther(big.NewInt(1e18)))
	require.Equal(t, 0.000521, WeiToEther(big.NewInt(521e12)))
	require.Equal(t, 0.0, WeiToEther(new(big.Int)))
}

func TestParseWeiString(t *testing.T) {
	require.Equal(t, big.NewInt(1045000000), ParseWeiString("1045000000"))
	require.Equal(t, int64(0), ParseWeiString("garbage").Int64())
}

func TestDayBucket(t *testing.T) {
	// 2021-04-29 16:00:00 UTC
	require.Equal(t, int64(18746), DayBucket(1619712000))
	require.Equal(t, int64(0), DayBucket(503))
}

func TestChunk(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	require.Len(t, chunks, 3)
	require.Equal(t, []int{1, 2}, chunks[0])
	require.Equal(t, []int{5}, chunks[2])

	require.Nil(t, Chunk([]int{}, 2))
	require.Len(t, Chunk([]int{1, 2}, 0), 1)
}

func TestReverse(t *testing.T) {
	in := []string{"a", "b", "c"}
	require.Equal(t, []string{"c", "b", "a"}, Reverse(in))
	require.Equal(t, []string{"a", "b", "c"}, in)
}

func TestTruncateHash(t *testing.T) {
	require.Equal(t, "0x1234...abcdef", TruncateHash("0x1234567890abcdef0000abcdef"))
	require.Equal(t, "0xabc", TruncateHash("0xabc"))
}
