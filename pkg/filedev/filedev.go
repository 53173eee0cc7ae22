package filedev

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
)

// FileDev uses a file holding an EEPROM image as a device.
type FileDev struct {
	file     *os.File
	size     uint32
	pageSize uint32
}

// New returns new filedev.
func New(file *os.File, pageSize uint32) (*FileDev, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if info.Size() == 0 || info.Size() > int64(^uint32(0)) {
		return nil, errors.Errorf("invalid image size: %d", info.Size())
	}
	if pageSize == 0 {
		return nil, errors.New("page size must be positive")
	}
	return &FileDev{
		file:     file,
		size:     uint32(info.Size()),
		pageSize: pageSize,
	}, nil
}

// Create creates a blank image of the given size. Existing file is truncated.
func Create(path string, size uint32) error {
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xFF}, int(size)), 0o600); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Open opens an existing image.
func Open(path string, pageSize uint32) (*FileDev, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	dev, err := New(file, pageSize)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return dev, nil
}

// ReadAt reads data from the file.
func (fd *FileDev) ReadAt(addr uint32, p []byte) error {
	if err := fd.check(addr, p); err != nil {
		return err
	}
	if _, err := fd.file.ReadAt(p, int64(addr)); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// WriteAt writes data to the file.
func (fd *FileDev) WriteAt(addr uint32, p []byte) error {
	if err := fd.check(addr, p); err != nil {
		return err
	}
	if _, err := fd.file.WriteAt(p, int64(addr)); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Sync syncs data to the file.
func (fd *FileDev) Sync() error {
	if err := fd.file.Sync(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Close closes the file.
func (fd *FileDev) Close() error {
	return errors.WithStack(fd.file.Close())
}

// Size returns the byte size of the image.
func (fd *FileDev) Size() uint32 {
	return fd.size
}

// PageSize returns the page size.
func (fd *FileDev) PageSize() uint32 {
	return fd.pageSize
}

func (fd *FileDev) check(addr uint32, p []byte) error {
	if len(p) == 0 || uint32(len(p)) > fd.pageSize {
		return errors.Errorf("invalid transfer size: %d", len(p))
	}
	if uint64(addr)+uint64(len(p)) > uint64(fd.size) {
		return errors.Errorf("invalid address: %d, size: %d", addr, len(p))
	}
	return nil
}
