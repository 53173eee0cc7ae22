package persistence

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/home"
)

// Format status bits stored in the Home Record.
const (
	// StatusPartitionFailed is set when any partition failed its read-back verification.
	StatusPartitionFailed uint8 = 1 << iota
	// StatusLayoutRejected is set when any partition could not be placed on the device.
	StatusLayoutRejected
)

var (
	// ErrAlreadyFormatted is returned if format is requested without overwrite on a device holding a Home Record.
	ErrAlreadyFormatted = errors.New("device has been already formatted")

	// ErrHomeWrite is returned if the Home Record could not be written during format.
	ErrHomeWrite = errors.New("writing home record failed")

	// ErrVerification is returned for a partition whose contents did not read back as written.
	ErrVerification = errors.New("read-back verification failed")
)

// FormatReport describes the outcome of format for every partition.
type FormatReport struct {
	Home     home.Block
	Failures [blocks.NumPartitions]error
}

// Err returns all the partition failures combined, nil if every partition is valid.
func (r FormatReport) Err() error {
	return multierr.Combine(r.Failures[:]...)
}

// Format verifies every partition of the configured layout and writes new Home Record.
// A partition overlapping one placed before it in Home Record order is rejected.
// Partitions failing verification are marked invalid and are not fatal. Failure to write the Home Record is.
// Unless overwrite is set, a device already carrying the magic is refused.
func (d *Directory) Format(overwrite bool) (FormatReport, error) {
	if !overwrite {
		b, err := d.ReadHome()
		if err != nil {
			return FormatReport{}, err
		}
		if b.Magic == home.Magic {
			return FormatReport{}, errors.WithStack(ErrAlreadyFormatted)
		}
	}

	d.log.Info("Formatting device", zap.Stringer("version", d.cfg.Version), zap.Uint32("size", d.pager.Dev().Size()))

	var report FormatReport
	b := home.Block{
		Magic:      home.Magic,
		Version:    d.cfg.Version,
		Serial:     d.cfg.Serial,
		Created:    uint32(d.clock().Unix()),
		DeviceSize: d.pager.Dev().Size(),
	}
	if b.Serial == 0 {
		b.Serial = uuid.New().ID()
	}

	for _, id := range blocks.AllPartitions {
		e := d.cfg.Layout[id]
		b.Partitions[id] = e

		if err := d.checkPlacement(id, e); err != nil {
			report.Failures[id] = err
			b.Status |= StatusLayoutRejected
			d.log.Warn("Partition rejected", zap.Stringer("partition", id), zap.Error(err))
			continue
		}
		if err := d.verifyRegion(e); err != nil {
			report.Failures[id] = errors.Wrapf(err, "partition %s", id)
			b.Status |= StatusPartitionFailed
			d.log.Warn("Partition verification failed", zap.Stringer("partition", id), zap.Error(err))
			continue
		}
		b.Valid |= id.Bit()
	}

	b.Seal(d.cfg.Seed)
	report.Home = b

	d.status = Unloaded
	d.home = home.Block{}
	if err := d.pager.Write(home.Offset, b.Marshal()); err != nil {
		d.log.Error("Writing home record failed", zap.Error(err))
		return report, fmt.Errorf("%w: %w", ErrHomeWrite, err)
	}

	d.home = b
	d.status = Trusted

	d.log.Info("Device formatted", zap.Uint8("valid", b.Valid), zap.Uint32("serial", b.Serial))
	return report, nil
}

// UpdateVersion rewrites the version of a Home Record which passes magic and checksum checks.
// It is used to migrate records written by a firmware of the same major version.
func (d *Directory) UpdateVersion() error {
	b, err := d.ReadHome()
	if err != nil {
		return err
	}
	if b.Magic != home.Magic {
		return errors.Wrap(blocks.ErrNotTrusted, "home record is not formatted")
	}
	if err := b.VerifyChecksum(d.cfg.Seed); err != nil {
		return errors.Wrap(blocks.ErrNotTrusted, err.Error())
	}
	if b.Version.Major != d.cfg.Version.Major {
		return errors.Wrapf(blocks.ErrNotTrusted, "major version %d cannot be migrated to %d, reformat is required",
			b.Version.Major, d.cfg.Version.Major)
	}

	from := b.Version
	b.Version = d.cfg.Version
	b.Seal(d.cfg.Seed)
	if err := d.pager.Write(home.Offset, b.Marshal()); err != nil {
		d.status = Unloaded
		d.home = home.Block{}
		return err
	}

	d.home = b
	d.status = d.classify(b)
	d.log.Info("Home record migrated", zap.Stringer("from", from), zap.Stringer("to", b.Version))
	return nil
}

func (d *Directory) checkPlacement(id blocks.PartitionID, e blocks.Extent) error {
	switch {
	case e.Length == 0:
		return errors.Errorf("partition %s is empty", id)
	case e.End() > uint64(d.pager.Dev().Size()):
		return errors.Errorf("partition %s [%d, %d) exceeds device size %d", id, e.Base, e.End(), d.pager.Dev().Size())
	case e.Overlaps(blocks.Extent{Base: home.Offset, Length: home.Size}):
		return errors.Errorf("partition %s overlaps home record", id)
	}
	for _, other := range blocks.AllPartitions[:id] {
		if o := d.cfg.Layout[other]; e.Overlaps(o) {
			return errors.Errorf("partition %s [%d, %d) overlaps %s [%d, %d)", id, e.Base, e.End(), other, o.Base,
				o.End())
		}
	}
	return nil
}

// verifyRegion writes zeros, then ones, reading each pattern back.
func (d *Directory) verifyRegion(e blocks.Extent) error {
	for _, pattern := range []byte{0x00, blocks.Erased} {
		if err := d.pager.Fill(e.Base, e.Length, pattern); err != nil {
			return err
		}
		if err := d.expect(e, pattern); err != nil {
			return err
		}
	}
	return nil
}

func (d *Directory) expect(e blocks.Extent, pattern byte) error {
	chunk := d.pager.PageSize()
	buf := make([]byte, chunk)
	want := bytes.Repeat([]byte{pattern}, int(chunk))
	for offset := uint32(0); offset < e.Length; offset += chunk {
		n := chunk
		if e.Length-offset < n {
			n = e.Length - offset
		}
		if err := d.pager.Read(e.Base+offset, buf[:n]); err != nil {
			return err
		}
		if !bytes.Equal(buf[:n], want[:n]) {
			return errors.Wrapf(ErrVerification, "pattern 0x%02X at offset %d", pattern, e.Base+offset)
		}
	}
	return nil
}
