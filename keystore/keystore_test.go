package keystore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/key"
	"github.com/outofforest/nvstore/config"
	"github.com/outofforest/nvstore/pagedio"
	"github.com/outofforest/nvstore/persistence"
	"github.com/outofforest/nvstore/pkg/memdev"
)

const devSize = 32 * 1024

func newStore(t *testing.T, capacity uint32) *Store {
	cfg := config.Default()
	d := persistence.New(pagedio.New(memdev.New(devSize, cfg.Device.PageSize)), cfg.Directory())
	_, err := d.Format(false)
	require.NoError(t, err)
	return New(d, cfg.CRCSeed, capacity)
}

func TestEnsureKey(t *testing.T) {
	requireT := require.New(t)

	store := newStore(t, DefaultCapacity)
	k := key.Value{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	authorized, err := store.Authorized(k)
	requireT.NoError(err)
	requireT.False(authorized)

	index, err := store.EnsureKey(k)
	requireT.NoError(err)
	requireT.EqualValues(0, index)

	index, err = store.EnsureKey(k)
	requireT.NoError(err)
	requireT.EqualValues(0, index)

	authorized, err = store.Authorized(k)
	requireT.NoError(err)
	requireT.True(authorized)

	index, err = store.EnsureKey(key.Value{0x0A})
	requireT.NoError(err)
	requireT.EqualValues(1, index)
}

func TestRegistryFull(t *testing.T) {
	requireT := require.New(t)

	store := newStore(t, 2)
	_, err := store.EnsureKey(key.Value{1})
	requireT.NoError(err)
	_, err = store.EnsureKey(key.Value{2})
	requireT.NoError(err)

	_, err = store.EnsureKey(key.Value{3})
	requireT.ErrorIs(err, blocks.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	requireT := require.New(t)

	store := newStore(t, DefaultCapacity)
	k := key.Value{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

	requireT.NoError(store.Put(k, 3))
	requireT.NoError(store.Put(k, 9))
	requireT.NoError(store.Put(key.Value{0x11}, 4))

	requireT.NoError(store.Revoke(k))

	authorized, err := store.Authorized(k)
	requireT.NoError(err)
	requireT.False(authorized)

	count, err := store.Count()
	requireT.NoError(err)
	requireT.EqualValues(1, count)

	requireT.NoError(store.Revoke(k))
}

func TestUntrustedRegistry(t *testing.T) {
	requireT := require.New(t)

	cfg := config.Default()
	dev := memdev.New(devSize, cfg.Device.PageSize)
	store := New(persistence.New(pagedio.New(dev), cfg.Directory()), cfg.CRCSeed, DefaultCapacity)

	_, err := store.Authorized(key.Value{1})
	requireT.ErrorIs(err, blocks.ErrNotTrusted)
	_, err = store.EnsureKey(key.Value{1})
	requireT.ErrorIs(err, blocks.ErrNotTrusted)
	requireT.ErrorIs(store.Revoke(key.Value{1}), blocks.ErrNotTrusted)
	requireT.Zero(dev.Transfers())
}
