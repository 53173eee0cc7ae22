package config

import (
	"github.com/pkg/errors"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/home"
	"github.com/outofforest/nvstore/blocks/identity"
	"github.com/outofforest/nvstore/blocks/key"
	"github.com/outofforest/nvstore/blocks/params"
)

// Validate checks configuration against the size of the device it is going to be used with.
// It does not mutate the configuration.
func Validate(cfg Config, deviceSize uint32) error {
	if cfg.Device.PageSize == 0 {
		return errors.New("device page size must be positive")
	}
	if cfg.Version.Major == blocks.Erased {
		return errors.Errorf("major version %d is reserved for erased devices", blocks.Erased)
	}
	if cfg.Stores.BypassKeys <= 0 || cfg.Stores.TruckIDs <= 0 {
		return errors.New("store capacities must be positive")
	}

	homeExtent := blocks.Extent{Base: home.Offset, Length: home.Size}
	extents := cfg.Layout.Extents()

	for _, id := range blocks.AllPartitions {
		e := extents[id]
		if e.Length == 0 {
			return errors.Errorf("partition %s: length must be positive", id)
		}
		if e.End() > uint64(deviceSize) {
			return errors.Errorf("partition %s: range %d-%d exceeds device size %d", id, e.Base, e.End()-1, deviceSize)
		}
		if e.Overlaps(homeExtent) {
			return errors.Errorf("partition %s: range %d-%d overlaps home record", id, e.Base, e.End()-1)
		}
		for _, other := range blocks.AllPartitions[:id] {
			o := extents[other]
			if e.Overlaps(o) {
				return errors.Errorf("partition overlap: %s range=%d-%d overlaps with %s range=%d-%d",
					id, e.Base, e.End()-1, other, o.Base, o.End()-1)
			}
		}
	}

	if extents[blocks.SystemParametersPartition].Length < uint32(params.Size) {
		return errors.Errorf("sysparams partition must hold at least %d bytes", params.Size)
	}
	if extents[blocks.BypassKeyPartition].Length < uint32(cfg.Stores.BypassKeys*key.Size) {
		return errors.Errorf("bypasskey partition too small for %d keys", cfg.Stores.BypassKeys)
	}
	if extents[blocks.TruckIDPartition].Length < uint32(cfg.Stores.TruckIDs*identity.Size) {
		return errors.Errorf("truckid partition too small for %d identities", cfg.Stores.TruckIDs)
	}

	return nil
}
