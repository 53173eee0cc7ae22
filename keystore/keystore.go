package keystore

import (
	"github.com/pkg/errors"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/key"
	"github.com/outofforest/nvstore/recordstore"
)

// DefaultCapacity is the number of bypass keys the controller keeps.
const DefaultCapacity = 32

// Store is the bypass key registry.
type Store struct {
	*recordstore.Store[key.Value]
}

// New returns new bypass key registry.
func New(parts recordstore.Partitions, seed uint16, capacity uint32, opts ...recordstore.Option) *Store {
	return &Store{
		Store: recordstore.New[key.Value](parts, blocks.BypassKeyPartition, key.Codec{Seed: seed}, capacity, opts...),
	}
}

// Authorized reports whether the key is registered.
func (s *Store) Authorized(k key.Value) (bool, error) {
	_, err := s.FindMatch(k)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, blocks.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// EnsureKey returns the slot of the key. If the key is not registered it is stored in the first empty slot.
func (s *Store) EnsureKey(k key.Value) (uint32, error) {
	index, err := s.FindMatch(k)
	if err == nil || !errors.Is(err, blocks.ErrNotFound) {
		return index, err
	}

	index, err = s.FindEmpty()
	if err != nil {
		return 0, errors.Wrap(err, "bypass key registry is full")
	}
	return index, s.Put(k, index)
}

// Revoke deletes the key from every slot it is stored in.
func (s *Store) Revoke(k key.Value) error {
	for {
		index, err := s.FindMatch(k)
		if errors.Is(err, blocks.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Delete(index); err != nil {
			return err
		}
	}
}
