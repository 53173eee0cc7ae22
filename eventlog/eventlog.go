package eventlog

import (
	"slices"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/event"
)

// Partitions gives access to partition contents.
type Partitions interface {
	Resolve(id blocks.PartitionID) (blocks.Extent, error)
	ReadPartition(id blocks.PartitionID, offset uint32, p []byte) error
	WritePartition(id blocks.PartitionID, offset uint32, p []byte) error
	FillPartition(id blocks.PartitionID, offset, length uint32, value byte) error
}

// Option configures the log.
type Option func(l *Log)

// WithClock sets the clock used to stamp entries.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) {
		l.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Log) {
		l.log = log
	}
}

// Log is the circular event log kept in the log partition. When the partition is full the oldest entry
// is overwritten.
type Log struct {
	parts Partitions
	seed  uint16
	clock func() time.Time
	log   *zap.Logger

	opened bool
	slots  uint32
	next   uint32
	seq    uint32
}

// New returns new event log. Open must be called before appending.
func New(parts Partitions, seed uint16, opts ...Option) *Log {
	l := &Log{
		parts: parts,
		seed:  seed,
		clock: time.Now,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open scans the partition for the newest entry and positions the log after it.
func (l *Log) Open() error {
	l.opened = false

	entries, slots, err := l.read()
	if err != nil {
		return err
	}
	if slots == 0 {
		return errors.Wrap(blocks.ErrOutOfRange, "log partition cannot hold a single entry")
	}

	l.slots = slots
	l.next = 0
	l.seq = 1
	if len(entries) > 0 {
		newest := entries[len(entries)-1]
		l.next = (newest.slot + 1) % slots
		l.seq = newest.Seq + 1
	}
	l.opened = true

	l.log.Debug("Event log opened", zap.Uint32("slots", slots), zap.Int("entries", len(entries)),
		zap.Uint32("next", l.next))
	return nil
}

// Append stores new entry.
func (l *Log) Append(code event.Code, arg [4]byte) (event.Block, error) {
	if !l.opened {
		if err := l.Open(); err != nil {
			return event.Block{}, err
		}
	}

	b := event.Block{
		Seq:  l.seq,
		Time: uint32(l.clock().Unix()),
		Code: code,
		Arg:  arg,
	}
	b.Seal(l.seed)

	if err := l.parts.WritePartition(blocks.LogPartition, l.next*event.Size, b.Marshal()); err != nil {
		// Position is unknown after failed write.
		l.opened = false
		return event.Block{}, err
	}

	l.seq++
	l.next = (l.next + 1) % l.slots
	return b, nil
}

// Entries returns valid entries, oldest first. Corrupted entries are skipped.
func (l *Log) Entries() ([]event.Block, error) {
	entries, _, err := l.read()
	if err != nil {
		return nil, err
	}
	result := make([]event.Block, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.Block)
	}
	return result, nil
}

// Erase removes every entry.
func (l *Log) Erase() error {
	e, err := l.parts.Resolve(blocks.LogPartition)
	if err != nil {
		return err
	}
	if err := l.parts.FillPartition(blocks.LogPartition, 0, e.Length, blocks.Erased); err != nil {
		l.opened = false
		return err
	}

	l.slots = e.Length / event.Size
	l.next = 0
	l.seq = 1
	l.opened = l.slots > 0
	return nil
}

type entry struct {
	event.Block
	slot uint32
}

func (l *Log) read() ([]entry, uint32, error) {
	e, err := l.parts.Resolve(blocks.LogPartition)
	if err != nil {
		return nil, 0, err
	}
	slots := e.Length / event.Size
	if slots == 0 {
		return nil, 0, nil
	}

	raw := make([]byte, slots*event.Size)
	if err := l.parts.ReadPartition(blocks.LogPartition, 0, raw); err != nil {
		return nil, 0, err
	}

	var entries []entry
	for i := uint32(0); i < slots; i++ {
		p := raw[i*event.Size : (i+1)*event.Size]
		if blocks.IsErased(p) {
			continue
		}
		b := event.Unmarshal(p)
		if !b.Verify(l.seed) {
			l.log.Debug("Corrupted log entry skipped", zap.Uint32("slot", i))
			continue
		}
		entries = append(entries, entry{Block: b, slot: i})
	}

	slices.SortFunc(entries, func(a, b entry) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		default:
			return 0
		}
	})
	return entries, slots, nil
}
