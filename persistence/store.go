package persistence

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/home"
	"github.com/outofforest/nvstore/pagedio"
)

// Status is the classification of the Home Record found on the device.
type Status byte

// Directory states.
const (
	// Unloaded means the Home Record has not been read successfully yet.
	Unloaded Status = iota
	Trusted
	// Blank means magic and version bytes are erased, the device has never been formatted.
	Blank
	// Corrupt means the magic does not match and is not erased.
	Corrupt
	ChecksumFailed
	// VersionMismatchMajor means the record was written by an incompatible firmware.
	VersionMismatchMajor
	// VersionMismatchMinor means the record is usable but should be migrated.
	VersionMismatchMinor
)

var statusNames = map[Status]string{
	Unloaded:             "unloaded",
	Trusted:              "trusted",
	Blank:                "blank",
	Corrupt:              "corrupt",
	ChecksumFailed:       "checksum-failed",
	VersionMismatchMajor: "version-mismatch-major",
	VersionMismatchMinor: "version-mismatch-minor",
}

func (s Status) String() string {
	if name, exists := statusNames[s]; exists {
		return name
	}
	return "unknown"
}

// Usable reports whether partitions may be resolved in this state.
func (s Status) Usable() bool {
	return s == Trusted || s == VersionMismatchMinor
}

// Config is the layout the directory formats the device with and the version it expects.
type Config struct {
	Version blocks.Version
	Seed    uint16
	Layout  [blocks.NumPartitions]blocks.Extent
	// Serial stored by format, zero means a random one is generated.
	Serial uint32
}

// Option configures the directory.
type Option func(d *Directory)

// WithClock sets the clock used to stamp formatted Home Records.
func WithClock(clock func() time.Time) Option {
	return func(d *Directory) {
		d.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Directory) {
		d.log = log
	}
}

// Directory owns the Home Record and answers where partitions live and whether they can be trusted.
type Directory struct {
	pager *pagedio.Pager
	cfg   Config
	clock func() time.Time
	log   *zap.Logger

	status Status
	home   home.Block
}

// New returns new directory. Nothing is read until Load is called, so every partition is refused.
func New(pager *pagedio.Pager, cfg Config, opts ...Option) *Directory {
	d := &Directory{
		pager: pager,
		cfg:   cfg,
		clock: time.Now,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load reads and classifies the Home Record. On transport failure the directory stays unloaded.
func (d *Directory) Load() (Status, error) {
	d.status = Unloaded
	d.home = home.Block{}

	b, err := d.ReadHome()
	if err != nil {
		d.log.Error("Reading home record failed", zap.Error(err))
		return Unloaded, err
	}

	d.home = b
	d.status = d.classify(b)

	if d.status == Trusted {
		d.log.Info("Home record loaded",
			zap.Stringer("version", b.Version),
			zap.Uint8("valid", b.Valid),
			zap.Uint32("serial", b.Serial))
	} else {
		d.log.Warn("Home record is not trusted",
			zap.Stringer("status", d.status),
			zap.Stringer("version", b.Version),
			zap.Stringer("expectedVersion", d.cfg.Version))
	}

	return d.status, nil
}

// ReadHome reads the Home Record without classifying it or changing directory state.
func (d *Directory) ReadHome() (home.Block, error) {
	raw := make([]byte, home.Size)
	if err := d.pager.Read(home.Offset, raw); err != nil {
		return home.Block{}, err
	}
	return home.Unmarshal(raw)
}

func (d *Directory) classify(b home.Block) Status {
	switch {
	case b.Magic == home.Magic:
	case b.MagicErased():
		return Blank
	default:
		return Corrupt
	}

	if err := b.VerifyChecksum(d.cfg.Seed); err != nil {
		return ChecksumFailed
	}
	if b.Version.Major != d.cfg.Version.Major {
		return VersionMismatchMajor
	}
	if b.Version.Minor != d.cfg.Version.Minor {
		return VersionMismatchMinor
	}
	return Trusted
}

// Status returns the result of the last Load, Format or UpdateVersion.
func (d *Directory) Status() Status {
	return d.status
}

// Home returns the Home Record read by the last Load.
func (d *Directory) Home() home.Block {
	return d.home
}

// Seed returns the CRC-16 seed used by the store.
func (d *Directory) Seed() uint16 {
	return d.cfg.Seed
}

// Valid reports whether the partition can be resolved.
func (d *Directory) Valid(id blocks.PartitionID) bool {
	_, err := d.Resolve(id)
	return err == nil
}

// Resolve returns the location of the partition. It never touches the device.
func (d *Directory) Resolve(id blocks.PartitionID) (blocks.Extent, error) {
	if !id.Known() {
		return blocks.Extent{}, errors.Wrapf(blocks.ErrUnknownPartition, "partition id %d", id)
	}
	if !d.status.Usable() {
		return blocks.Extent{}, errors.Wrapf(blocks.ErrNotTrusted, "directory is %s", d.status)
	}
	if !d.home.IsValid(id) {
		return blocks.Extent{}, errors.Wrapf(blocks.ErrNotTrusted, "partition %s is not valid", id)
	}

	e := d.home.Extent(id)
	if e.End() > uint64(d.pager.Dev().Size()) {
		return blocks.Extent{}, errors.Wrapf(blocks.ErrNotTrusted, "partition %s exceeds device", id)
	}
	return e, nil
}

// ReadPartition reads len(p) bytes starting at offset within the partition.
func (d *Directory) ReadPartition(id blocks.PartitionID, offset uint32, p []byte) error {
	e, err := d.bounds(id, offset, uint32(len(p)))
	if err != nil {
		return err
	}
	return d.pager.Read(e.Base+offset, p)
}

// WritePartition writes p starting at offset within the partition.
func (d *Directory) WritePartition(id blocks.PartitionID, offset uint32, p []byte) error {
	e, err := d.bounds(id, offset, uint32(len(p)))
	if err != nil {
		return err
	}
	return d.pager.Write(e.Base+offset, p)
}

// FillPartition writes length copies of value starting at offset within the partition.
func (d *Directory) FillPartition(id blocks.PartitionID, offset, length uint32, value byte) error {
	e, err := d.bounds(id, offset, length)
	if err != nil {
		return err
	}
	return d.pager.Fill(e.Base+offset, length, value)
}

// ErasePartition fills the whole partition with the erased pattern.
func (d *Directory) ErasePartition(id blocks.PartitionID) error {
	e, err := d.Resolve(id)
	if err != nil {
		return err
	}
	d.log.Info("Erasing partition", zap.Stringer("partition", id), zap.Uint32("length", e.Length))
	return d.pager.Fill(e.Base, e.Length, blocks.Erased)
}

func (d *Directory) bounds(id blocks.PartitionID, offset, length uint32) (blocks.Extent, error) {
	e, err := d.Resolve(id)
	if err != nil {
		return blocks.Extent{}, err
	}
	if uint64(offset)+uint64(length) > uint64(e.Length) {
		return blocks.Extent{}, errors.Wrapf(blocks.ErrOutOfRange, "partition %s: offset %d, length %d, size %d",
			id, offset, length, e.Length)
	}
	return e, nil
}
