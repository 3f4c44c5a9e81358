package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// Image is the storage behind the device: a fixed array of equal-size blocks.
type Image interface {
	ReadBlock(block int, buf []byte) error
	WriteBlock(block int, buf []byte) error
	Close() error
}

// Image kinds accepted by OpenImage.
const (
	ImageMemory = "memory"
	ImageFile   = "file"
	ImageSQLite = "sqlite"
)

// OpenImage opens an image of the given kind. path is ignored for memory images.
func OpenImage(kind, path string, blocks, blockSize int) (Image, error) {
	switch strings.ToLower(kind) {
	case "", ImageMemory:
		return NewMemImage(blocks, blockSize), nil
	case ImageFile:
		return OpenFileImage(path, blocks, blockSize)
	case ImageSQLite:
		return OpenSQLiteImage(path, blocks, blockSize)
	default:
		return nil, fmt.Errorf("unknown image kind %q (want memory, file or sqlite)", kind)
	}
}

func checkBlock(block, blocks int, buf []byte, blockSize int) error {
	if block < 0 || block >= blocks {
		return fmt.Errorf("block %d out of range [0,%d)", block, blocks)
	}
	if len(buf) != blockSize {
		return fmt.Errorf("buffer of %d bytes, block size is %d", len(buf), blockSize)
	}
	return nil
}

// MemImage keeps the blocks in memory.
type MemImage struct {
	blockSize int
	data      [][]byte
}

// NewMemImage creates a zero-filled in-memory image.
func NewMemImage(blocks, blockSize int) *MemImage {
	data := make([][]byte, blocks)
	for i := range data {
		data[i] = make([]byte, blockSize)
	}
	return &MemImage{blockSize: blockSize, data: data}
}

func (m *MemImage) ReadBlock(block int, buf []byte) error {
	if err := checkBlock(block, len(m.data), buf, m.blockSize); err != nil {
		return err
	}
	copy(buf, m.data[block])
	return nil
}

func (m *MemImage) WriteBlock(block int, buf []byte) error {
	if err := checkBlock(block, len(m.data), buf, m.blockSize); err != nil {
		return err
	}
	copy(m.data[block], buf)
	return nil
}

func (m *MemImage) Close() error { return nil }

// FileImage stores the blocks back to back in a flat file.
type FileImage struct {
	f         *os.File
	blocks    int
	blockSize int
}

// OpenFileImage opens or creates the file at path and sizes it to hold
// every block.
func OpenFileImage(path string, blocks, blockSize int) (*FileImage, error) {
	if path == "" {
		return nil, fmt.Errorf("file image: empty path")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	size := int64(blocks) * int64(blockSize)
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat image %s: %w", path, err)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("resize image %s: %w", path, err)
		}
	}
	return &FileImage{f: f, blocks: blocks, blockSize: blockSize}, nil
}

func (fi *FileImage) ReadBlock(block int, buf []byte) error {
	if err := checkBlock(block, fi.blocks, buf, fi.blockSize); err != nil {
		return err
	}
	if _, err := fi.f.ReadAt(buf, int64(block)*int64(fi.blockSize)); err != nil {
		return fmt.Errorf("read block %d: %w", block, err)
	}
	return nil
}

func (fi *FileImage) WriteBlock(block int, buf []byte) error {
	if err := checkBlock(block, fi.blocks, buf, fi.blockSize); err != nil {
		return err
	}
	if _, err := fi.f.WriteAt(buf, int64(block)*int64(fi.blockSize)); err != nil {
		return fmt.Errorf("write block %d: %w", block, err)
	}
	return nil
}

func (fi *FileImage) Close() error {
	return fi.f.Close()
}

// SQLiteImage stores each written block as a row; unwritten blocks read as zeros.
type SQLiteImage struct {
	db        *sql.DB
	blocks    int
	blockSize int
}

// OpenSQLiteImage opens (or creates) the database at path. Use ":memory:"
// for a throwaway image.
func OpenSQLiteImage(path string, blocks, blockSize int) (*SQLiteImage, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite image %s: %w", path, err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS blocks (
		num  INTEGER PRIMARY KEY,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create blocks table: %w", err)
	}
	return &SQLiteImage{db: db, blocks: blocks, blockSize: blockSize}, nil
}

func (s *SQLiteImage) ReadBlock(block int, buf []byte) error {
	if err := checkBlock(block, s.blocks, buf, s.blockSize); err != nil {
		return err
	}
	var data []byte
	err := s.db.QueryRow("SELECT data FROM blocks WHERE num = ?", block).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		clear(buf)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read block %d: %w", block, err)
	}
	n := copy(buf, data)
	clear(buf[n:])
	return nil
}

func (s *SQLiteImage) WriteBlock(block int, buf []byte) error {
	if err := checkBlock(block, s.blocks, buf, s.blockSize); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO blocks (num, data) VALUES (?, ?)
		ON CONFLICT(num) DO UPDATE SET data = excluded.data`, block, buf)
	if err != nil {
		return fmt.Errorf("write block %d: %w", block, err)
	}
	return nil
}

func (s *SQLiteImage) Close() error {
	return s.db.Close()
}
