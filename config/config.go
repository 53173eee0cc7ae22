package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/persistence"
)

// Config describes a deployment of the store.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Version VersionConfig `yaml:"version"`
	// CRCSeed is the seed of every CRC-16 computed by the store.
	CRCSeed    uint16       `yaml:"crc_seed"`
	Layout     LayoutConfig `yaml:"layout"`
	Stores     StoresConfig `yaml:"stores"`
	Audit      AuditConfig  `yaml:"audit"`
	Serial     uint32       `yaml:"serial"`
	AutoFormat bool         `yaml:"auto_format"`
	// AutoMigrate rewrites the version of a Home Record whose minor version is stale.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// DeviceConfig selects the device backend.
type DeviceConfig struct {
	PageSize uint32 `yaml:"page_size"`
	// Image is the path of the EEPROM image used by the file backend.
	Image  string       `yaml:"image"`
	Modbus ModbusConfig `yaml:"modbus"`
}

// ModbusConfig configures access to a remote EEPROM mirrored in holding registers.
type ModbusConfig struct {
	Endpoint     string `yaml:"endpoint"`
	UnitID       uint8  `yaml:"unit_id"`
	BaseRegister uint16 `yaml:"base_register"`
	Size         uint32 `yaml:"size"`
	TimeoutMs    int    `yaml:"timeout_ms"`
}

// VersionConfig is the format version expected by the firmware.
type VersionConfig struct {
	Major uint8 `yaml:"major"`
	Minor uint8 `yaml:"minor"`
}

// ExtentConfig is the location of one partition.
type ExtentConfig struct {
	Base   uint32 `yaml:"base"`
	Length uint32 `yaml:"length"`
}

// LayoutConfig places every partition on the device.
type LayoutConfig struct {
	Boot             ExtentConfig `yaml:"boot"`
	Crash            ExtentConfig `yaml:"crash"`
	SystemParameters ExtentConfig `yaml:"sysparams"`
	Log              ExtentConfig `yaml:"log"`
	BypassKey        ExtentConfig `yaml:"bypasskey"`
	TruckID          ExtentConfig `yaml:"truckid"`
}

// StoresConfig sets record store capacities.
type StoresConfig struct {
	BypassKeys int `yaml:"bypass_keys"`
	TruckIDs   int `yaml:"truck_ids"`
}

// AuditConfig selects which system-parameter sub-blocks fail the audit on checksum mismatch.
type AuditConfig struct {
	EnforceGeneral   bool `yaml:"enforce_general"`
	EnforceDateStamp bool `yaml:"enforce_date_stamp"`
	EnforceFiveWire  bool `yaml:"enforce_five_wire"`
	EnforceVoltage   bool `yaml:"enforce_voltage"`
	EnforceFactory   bool `yaml:"enforce_factory"`
}

// Default returns the layout of the 32 KiB controller board.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			PageSize: 128,
			Modbus: ModbusConfig{
				UnitID:    1,
				Size:      32 * 1024,
				TimeoutMs: 1000,
			},
		},
		Version: VersionConfig{Major: 3, Minor: 1},
		CRCSeed: blocks.DefaultCRC16Seed,
		Layout: LayoutConfig{
			Boot:             ExtentConfig{Base: 128, Length: 128},
			Crash:            ExtentConfig{Base: 256, Length: 256},
			SystemParameters: ExtentConfig{Base: 512, Length: 512},
			BypassKey:        ExtentConfig{Base: 1024, Length: 256},
			TruckID:          ExtentConfig{Base: 1280, Length: 30000},
			Log:              ExtentConfig{Base: 31488, Length: 1280},
		},
		Stores: StoresConfig{
			BypassKeys: 32,
			TruckIDs:   5000,
		},
		Audit: AuditConfig{
			EnforceGeneral:  true,
			EnforceFiveWire: true,
			EnforceVoltage:  true,
		},
		AutoFormat:  true,
		AutoMigrate: true,
	}
}

// Load reads the config file. Fields missing from the file keep their default values.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// FormatVersion returns the version as stored in the Home Record.
func (c Config) FormatVersion() blocks.Version {
	return blocks.Version{Major: c.Version.Major, Minor: c.Version.Minor}
}

// Directory returns the configuration of the partition directory.
func (c Config) Directory() persistence.Config {
	return persistence.Config{
		Version: c.FormatVersion(),
		Seed:    c.CRCSeed,
		Layout:  c.Layout.Extents(),
		Serial:  c.Serial,
	}
}

// Extents returns partition extents in Home Record order.
func (l LayoutConfig) Extents() [blocks.NumPartitions]blocks.Extent {
	var extents [blocks.NumPartitions]blocks.Extent
	for _, id := range blocks.AllPartitions {
		e := l.extent(id)
		extents[id] = blocks.Extent{Base: e.Base, Length: e.Length}
	}
	return extents
}

func (l LayoutConfig) extent(id blocks.PartitionID) ExtentConfig {
	switch id {
	case blocks.BootPartition:
		return l.Boot
	case blocks.CrashPartition:
		return l.Crash
	case blocks.SystemParametersPartition:
		return l.SystemParameters
	case blocks.LogPartition:
		return l.Log
	case blocks.BypassKeyPartition:
		return l.BypassKey
	default:
		return l.TruckID
	}
}
