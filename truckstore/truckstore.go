package truckstore

import (
	"github.com/pkg/errors"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/identity"
	"github.com/outofforest/nvstore/recordstore"
)

// DefaultCapacity is the number of truck identities the controller keeps.
const DefaultCapacity = 5000

// Store is the truck identity registry.
type Store struct {
	*recordstore.Store[identity.Value]
}

// New returns new truck identity registry.
func New(parts recordstore.Partitions, capacity uint32, opts ...recordstore.Option) *Store {
	return &Store{
		Store: recordstore.New[identity.Value](parts, blocks.TruckIDPartition, identity.Codec{}, capacity, opts...),
	}
}

// Authorized reports whether the truck is registered.
func (s *Store) Authorized(id identity.Value) (bool, error) {
	_, err := s.FindMatch(id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, blocks.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// EnsureTruck returns the slot of the truck. If the truck is not registered it is stored in the first empty slot.
func (s *Store) EnsureTruck(id identity.Value) (uint32, error) {
	if id[0] != 0 {
		return 0, errors.Wrapf(blocks.ErrDataError, "identity %x has non-zero byte 0", id[:])
	}

	index, err := s.FindMatch(id)
	if err == nil || !errors.Is(err, blocks.ErrNotFound) {
		return index, err
	}

	index, err = s.FindEmpty()
	if err != nil {
		return 0, errors.Wrap(err, "truck registry is full")
	}
	return index, s.Put(id, index)
}
