package card

import (
	"io"
	"os"
	"sync"
)

// BlockSize is the physical block size of every emulated card.
const BlockSize = 512

// Storage is the block backend behind an emulated card.
type Storage interface {
	// BlockCount returns the total number of blocks.
	BlockCount() uint64

	// ReadBlocks fills buf, a multiple of BlockSize, starting at lba.
	ReadBlocks(lba uint64, buf []byte) error

	// WriteBlocks stores buf, a multiple of BlockSize, starting at lba.
	WriteBlocks(lba uint64, buf []byte) error

	// Erase sets blocks first through last inclusive to fill.
	Erase(first, last uint64, fill byte) error

	// Sync flushes any cached writes.
	Sync() error
}

// MemoryStorage implements Storage using an in-memory buffer.
type MemoryStorage struct {
	data  []byte
	mutex sync.RWMutex
}

// NewMemoryStorage creates zeroed in-memory storage of the given block count.
func NewMemoryStorage(blocks uint64) *MemoryStorage {
	return &MemoryStorage{data: make([]byte, blocks*BlockSize)}
}

// BlockCount returns the number of blocks.
func (m *MemoryStorage) BlockCount() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return uint64(len(m.data)) / BlockSize
}

// ReadBlocks reads blocks from memory.
func (m *MemoryStorage) ReadBlocks(lba uint64, buf []byte) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	offset, end, err := m.span(lba, uint64(len(buf)))
	if err != nil {
		return err
	}
	copy(buf, m.data[offset:end])
	return nil
}

// WriteBlocks writes blocks to memory.
func (m *MemoryStorage) WriteBlocks(lba uint64, buf []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	offset, end, err := m.span(lba, uint64(len(buf)))
	if err != nil {
		return err
	}
	copy(m.data[offset:end], buf)
	return nil
}

// Erase fills a block range.
func (m *MemoryStorage) Erase(first, last uint64, fill byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if last < first {
		return io.ErrUnexpectedEOF
	}
	offset, end, err := m.span(first, (last-first+1)*BlockSize)
	if err != nil {
		return err
	}
	for i := offset; i < end; i++ {
		m.data[i] = fill
	}
	return nil
}

// Sync is a no-op for memory storage.
func (m *MemoryStorage) Sync() error {
	return nil
}

func (m *MemoryStorage) span(lba, length uint64) (uint64, uint64, error) {
	if length%BlockSize != 0 {
		return 0, 0, io.ErrShortBuffer
	}
	offset := lba * BlockSize
	if offset+length > uint64(len(m.data)) {
		return 0, 0, io.EOF
	}
	return offset, offset + length, nil
}

// FileStorage implements Storage using a disk image file.
type FileStorage struct {
	file     *os.File
	size     uint64
	readOnly bool
	mutex    sync.RWMutex
}

// NewFileStorage opens a disk image. If readOnly is true, writes and
// erases fail with os.ErrPermission.
func NewFileStorage(path string, readOnly bool) (*FileStorage, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &FileStorage{
		file:     file,
		size:     uint64(stat.Size()),
		readOnly: readOnly,
	}, nil
}

// BlockCount returns the number of whole blocks in the image.
func (f *FileStorage) BlockCount() uint64 {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.size / BlockSize
}

// ReadBlocks reads blocks from the image.
func (f *FileStorage) ReadBlocks(lba uint64, buf []byte) error {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	offset := lba * BlockSize
	if len(buf)%BlockSize != 0 {
		return io.ErrShortBuffer
	}
	if offset+uint64(len(buf)) > f.size {
		return io.EOF
	}

	_, err := f.file.ReadAt(buf, int64(offset))
	if err == io.EOF {
		err = nil
	}
	return err
}

// WriteBlocks writes blocks to the image.
func (f *FileStorage) WriteBlocks(lba uint64, buf []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return os.ErrPermission
	}
	offset := lba * BlockSize
	if len(buf)%BlockSize != 0 {
		return io.ErrShortBuffer
	}
	if offset+uint64(len(buf)) > f.size {
		return io.EOF
	}

	_, err := f.file.WriteAt(buf, int64(offset))
	return err
}

// Erase fills a block range in the image.
func (f *FileStorage) Erase(first, last uint64, fill byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return os.ErrPermission
	}
	if last < first || (last+1)*BlockSize > f.size {
		return io.EOF
	}

	var block [BlockSize]byte
	for i := range block {
		block[i] = fill
	}
	for lba := first; lba <= last; lba++ {
		if _, err := f.file.WriteAt(block[:], int64(lba*BlockSize)); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes image writes to disk.
func (f *FileStorage) Sync() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return nil
	}
	return f.file.Sync()
}

// Close closes the underlying file.
func (f *FileStorage) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}
