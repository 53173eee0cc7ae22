package pagedio

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Dev is the interface required from the device. Every call transfers at most one page and must not
// cross a page boundary.
type Dev interface {
	ReadAt(addr uint32, p []byte) error
	WriteAt(addr uint32, p []byte) error
	PageSize() uint32
	Size() uint32
}

// Kind is the kind of the transfer.
type Kind byte

// Transfer kinds.
const (
	ReadKind Kind = iota
	WriteKind
	FillKind
)

func (k Kind) String() string {
	switch k {
	case ReadKind:
		return "read"
	case WriteKind:
		return "write"
	default:
		return "fill"
	}
}

// Option configures the pager.
type Option func(p *Pager)

// WithKeepAlive sets the function called between page transfers. It must not re-enter the pager.
func WithKeepAlive(keepAlive func()) Option {
	return func(p *Pager) {
		p.keepAlive = keepAlive
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pager) {
		p.log = log
	}
}

// Pager splits arbitrary byte ranges into page-bounded device transfers.
type Pager struct {
	dev       Dev
	pageSize  uint32
	keepAlive func()
	log       *zap.Logger
	fillPage  [2][]byte
}

// New returns new pager.
func New(dev Dev, opts ...Option) *Pager {
	p := &Pager{
		dev:       dev,
		pageSize:  dev.PageSize(),
		keepAlive: func() {},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dev returns the underlying device.
func (p *Pager) Dev() Dev {
	return p.dev
}

// PageSize returns the page size of the device.
func (p *Pager) PageSize() uint32 {
	return p.pageSize
}

// Read reads len(buf) bytes starting at offset.
func (p *Pager) Read(offset uint32, buf []byte) error {
	return p.transfer(ReadKind, offset, uint32(len(buf)), buf, 0)
}

// Write writes buf starting at offset.
func (p *Pager) Write(offset uint32, buf []byte) error {
	return p.transfer(WriteKind, offset, uint32(len(buf)), buf, 0)
}

// Fill writes length copies of value starting at offset.
func (p *Pager) Fill(offset, length uint32, value byte) error {
	return p.transfer(FillKind, offset, length, nil, value)
}

// transfer runs the request page by page. The first page failure aborts the request, pages already
// transferred stay as they are.
func (p *Pager) transfer(kind Kind, offset, length uint32, data []byte, fill byte) error {
	if length == 0 {
		return nil
	}

	var fillBuf []byte
	if kind == FillKind {
		fillBuf = p.fillBuffer(fill)
	}

	chunk := p.pageSize - offset%p.pageSize
	var done uint32
	for done < length {
		if done > 0 {
			p.keepAlive()
		}

		n := chunk
		if remaining := length - done; n > remaining {
			n = remaining
		}
		addr := offset + done

		var err error
		switch kind {
		case ReadKind:
			err = p.dev.ReadAt(addr, data[done:done+n])
		case WriteKind:
			err = p.dev.WriteAt(addr, data[done:done+n])
		default:
			err = p.dev.WriteAt(addr, fillBuf[:n])
		}
		if err != nil {
			p.log.Debug("Page transfer failed",
				zap.Stringer("kind", kind),
				zap.Uint32("address", addr),
				zap.Uint32("length", n),
				zap.Uint32("transferred", done),
				zap.Error(err))
			return errors.WithStack(err)
		}

		done += n
		chunk = p.pageSize
	}

	return nil
}

func (p *Pager) fillBuffer(value byte) []byte {
	// Erase (0xFF) and clear (0x00) are the only fills used in practice, keep one buffer for each.
	var slot int
	switch value {
	case 0x00:
		slot = 0
	case 0xFF:
		slot = 1
	default:
		buf := make([]byte, p.pageSize)
		for i := range buf {
			buf[i] = value
		}
		return buf
	}

	if p.fillPage[slot] == nil {
		buf := make([]byte, p.pageSize)
		for i := range buf {
			buf[i] = value
		}
		p.fillPage[slot] = buf
	}
	return p.fillPage[slot]
}
