package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"microlend/storage"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func TestTokenRegistry(t *testing.T) {
	mgr := newManager(t)

	require.False(t, mgr.TokenExists("WSOL"))
	require.NoError(t, mgr.RegisterToken("wsol", "Wrapped SOL", 9))
	require.True(t, mgr.TokenExists("WSOL"))
	require.True(t, mgr.TokenExists(" wsol "))

	require.Error(t, mgr.RegisterToken("WSOL", "Wrapped SOL", 9))
	require.Error(t, mgr.RegisterToken("", "empty", 0))

	require.NoError(t, mgr.RegisterToken("USDC", "USD Coin", 6))
	require.NoError(t, mgr.RegisterToken("AKSH", "Aksh Token", 9))

	list, err := mgr.TokenList()
	require.NoError(t, err)
	require.Equal(t, []string{"AKSH", "USDC", "WSOL"}, list)

	meta, err := mgr.Token("usdc")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "USDC", meta.Symbol)
	require.Equal(t, uint8(6), meta.Decimals)
	require.Empty(t, meta.MintAuthority)
	require.False(t, meta.MintPaused)

	missing, err := mgr.Token("DOGE")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestTokenMintControls(t *testing.T) {
	mgr := newManager(t)
	require.NoError(t, mgr.RegisterToken("WSOL", "Wrapped SOL", 9))

	authority := []byte{0x01, 0x02, 0x03}
	require.NoError(t, mgr.SetTokenMintAuthority("WSOL", authority))
	require.Error(t, mgr.SetTokenMintAuthority("DOGE", authority))

	meta, err := mgr.Token("WSOL")
	require.NoError(t, err)
	require.Equal(t, authority, meta.MintAuthority)

	require.NoError(t, mgr.SetTokenMintPaused("WSOL", true))
	meta, err = mgr.Token("WSOL")
	require.NoError(t, err)
	require.True(t, meta.MintPaused)
}

func TestBalances(t *testing.T) {
	mgr := newManager(t)
	addr := []byte{0xAA, 0xBB}

	bal, err := mgr.Balance(addr, "WSOL")
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	require.NoError(t, mgr.SetBalance(addr, "wsol", big.NewInt(1_000)))
	bal, err = mgr.Balance(addr, "WSOL")
	require.NoError(t, err)
	require.Equal(t, int64(1_000), bal.Int64())

	require.Error(t, mgr.SetBalance(addr, "WSOL", big.NewInt(-1)))
	require.Error(t, mgr.SetBalance(addr, "WSOL", nil))
	require.Error(t, mgr.SetBalance(addr, "", big.NewInt(1)))
}

func TestKVRoundTrip(t *testing.T) {
	mgr := newManager(t)
	key := []byte("test/record")

	type record struct {
		Label string
		Count uint64
	}

	var out record
	ok, err := mgr.KVGet(key, &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.KVPut(key, &record{Label: "hello", Count: 7}))
	ok, err = mgr.KVGet(key, &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", out.Label)
	require.Equal(t, uint64(7), out.Count)
}

func TestKVList(t *testing.T) {
	mgr := newManager(t)
	key := []byte("test/list")

	var list [][]byte
	require.NoError(t, mgr.KVGetList(key, &list))
	require.NotNil(t, list)
	require.Empty(t, list)

	require.NoError(t, mgr.KVAppend(key, []byte("a")))
	require.NoError(t, mgr.KVAppend(key, []byte("b")))
	require.NoError(t, mgr.KVAppend(key, []byte("a"))) // duplicate suppressed

	require.NoError(t, mgr.KVGetList(key, &list))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, list)

	require.NoError(t, mgr.KVRemove(key, []byte("a")))
	require.NoError(t, mgr.KVGetList(key, &list))
	require.Equal(t, [][]byte{[]byte("b")}, list)

	// Removing an absent entry is a no-op.
	require.NoError(t, mgr.KVRemove(key, []byte("z")))
	require.NoError(t, mgr.KVGetList(key, &list))
	require.Len(t, list, 1)
}
