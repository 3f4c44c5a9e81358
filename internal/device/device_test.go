package device

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/me/kernsim/pkg/model"
)

func testDisk(t *testing.T, cfg Config) *Disk {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(cfg, NewMemImage(cfg.Blocks, cfg.BlockSize), logger)
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return d
}

func TestDisk_WriteThenRead(t *testing.T) {
	cfg := Config{Blocks: 100, BlockSize: 8, DelayMin: 10, DelayMax: 30}
	d := testDisk(t, cfg)

	completions := 0
	d.OnComplete(func() { completions++ })

	out := []byte("abcdefgh")
	if err := d.Issue(model.DiskOpWrite, 50, out); err != nil {
		t.Fatalf("Issue write: %v", err)
	}
	if d.Status() != StatusBusy || !d.Pending() {
		t.Fatalf("Status() = %s, want busy", d.Status())
	}

	// Seek 0 -> 50 of 100 blocks: 10 + 50*20/100 = 20 ticks.
	var now uint64
	for d.Pending() {
		now++
		d.Tick(now)
	}
	if now != 20 {
		t.Errorf("write completed at tick %d, want 20", now)
	}
	if completions != 1 {
		t.Errorf("completions = %d, want 1", completions)
	}
	if err := d.Result(); err != nil {
		t.Errorf("Result() = %v", err)
	}

	in := make([]byte, 8)
	if err := d.Issue(model.DiskOpRead, 50, in); err != nil {
		t.Fatalf("Issue read: %v", err)
	}
	start := now
	for d.Pending() {
		now++
		d.Tick(now)
	}
	if now-start != 10 {
		t.Errorf("read without seek took %d ticks, want 10", now-start)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("read %q, want %q", in, out)
	}
}

func TestDisk_IssueErrors(t *testing.T) {
	cfg := Config{Blocks: 10, BlockSize: 4, DelayMin: 1, DelayMax: 2}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d := New(cfg, NewMemImage(10, 4), logger)
	if err := d.Issue(model.DiskOpRead, 0, make([]byte, 4)); !errors.Is(err, model.ErrNotInitialized) {
		t.Errorf("Issue before Init = %v, want ErrNotInitialized", err)
	}

	d = testDisk(t, cfg)
	if err := d.Issue(model.DiskOpRead, 10, make([]byte, 4)); !errors.Is(err, model.ErrIssueFailure) {
		t.Errorf("Issue out of range = %v, want ErrIssueFailure", err)
	}
	if err := d.Issue(model.DiskOpRead, 1, make([]byte, 2)); !errors.Is(err, model.ErrIssueFailure) {
		t.Errorf("Issue short buffer = %v, want ErrIssueFailure", err)
	}
	if err := d.Issue(model.DiskOpRead, 1, make([]byte, 4)); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := d.Issue(model.DiskOpRead, 2, make([]byte, 4)); !errors.Is(err, model.ErrDeviceBusy) {
		t.Errorf("Issue while busy = %v, want ErrDeviceBusy", err)
	}
}

func TestDisk_InitRejectsBadGeometry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no blocks", Config{Blocks: 0, BlockSize: 4, DelayMax: 1}},
		{"no block size", Config{Blocks: 4, BlockSize: 0, DelayMax: 1}},
		{"inverted delays", Config{Blocks: 4, BlockSize: 4, DelayMin: 5, DelayMax: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.cfg, NewMemImage(4, 4), logger)
			if err := d.Init(); err == nil {
				t.Error("Init() = nil, want error")
			}
		})
	}
}

func TestImages_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind string
		path string
	}{
		{ImageMemory, ""},
		{ImageFile, filepath.Join(dir, "disk.dat")},
		{ImageSQLite, filepath.Join(dir, "disk.db")},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			img, err := OpenImage(tt.kind, tt.path, 16, 4)
			if err != nil {
				t.Fatalf("OpenImage: %v", err)
			}
			defer img.Close()

			buf := make([]byte, 4)
			if err := img.ReadBlock(3, buf); err != nil {
				t.Fatalf("ReadBlock unwritten: %v", err)
			}
			if !bytes.Equal(buf, make([]byte, 4)) {
				t.Errorf("unwritten block = %v, want zeros", buf)
			}

			if err := img.WriteBlock(3, []byte{1, 2, 3, 4}); err != nil {
				t.Fatalf("WriteBlock: %v", err)
			}
			if err := img.WriteBlock(3, []byte{5, 6, 7, 8}); err != nil {
				t.Fatalf("WriteBlock overwrite: %v", err)
			}
			if err := img.ReadBlock(3, buf); err != nil {
				t.Fatalf("ReadBlock: %v", err)
			}
			if !bytes.Equal(buf, []byte{5, 6, 7, 8}) {
				t.Errorf("block 3 = %v, want [5 6 7 8]", buf)
			}

			if err := img.WriteBlock(16, buf); err == nil {
				t.Error("WriteBlock(16) = nil, want range error")
			}
		})
	}
}

func TestOpenImage_UnknownKind(t *testing.T) {
	if _, err := OpenImage("tape", "", 1, 1); err == nil {
		t.Error("OpenImage(tape) = nil error, want error")
	}
}
