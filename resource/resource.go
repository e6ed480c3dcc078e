// Package resource memory-maps the versioned butterfly-matrix resource
// file described by spec.md §6 and exposes per-(m, parity) matrix blob
// slices, mirroring original_source/src/wavemoth.c's
// wavemoth_mmap_resources.
package resource

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
)

// FormatVersion is bumped on any breaking change to the blob wire
// format, exactly as RESOURCE_FORMAT_VERSION in the original C.
const FormatVersion = 1

const headerSize = 24 // three little-endian int64 fields: lmax, mmax, nside

// File is a parsed, memory-mapped resource file. Offsets and lengths are
// byte positions/sizes within Data; an offset of 0 means "missing"
// (spec.md §3's debug/benchmark convention).
type File struct {
	LMax, MMax, NSide int

	// Data is the full file content: header, offsets table, and blobs.
	Data []byte

	// mapped is non-nil when Data was produced by Mmap and must be
	// unmapped on Close.
	mapped []byte
}

// ErrIO groups resource-file I/O and format errors per spec.md §7.
type ErrIO struct{ msg string }

func (e *ErrIO) Error() string { return e.msg }

func errIOf(format string, args ...any) error {
	return &ErrIO{msg: fmt.Sprintf(format, args...)}
}

// Load memory-maps the resource file at path.
func Load(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, errIOf("resource: open %s: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errIOf("resource: fstat %s: %v", path, err)
	}
	size := info.Size()
	if size < headerSize {
		return nil, errIOf("resource: %s is too small to contain a header", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errIOf("resource: mmap %s: %v", path, err)
	}

	rf, err := parse(data)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	rf.mapped = data
	return rf, nil
}

// FromBytes parses an already-loaded (or synthetically constructed, for
// tests) resource file image without touching disk. See
// resource/testresource for the fixture builder used by this repo's own
// tests.
func FromBytes(data []byte) (*File, error) {
	return parse(data)
}

func parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, errIOf("resource: truncated header (%d bytes)", len(data))
	}
	lmax := int64(binary.LittleEndian.Uint64(data[0:8]))
	mmax := int64(binary.LittleEndian.Uint64(data[8:16]))
	nside := int64(binary.LittleEndian.Uint64(data[16:24]))
	if lmax < 0 || mmax < 0 || nside <= 0 {
		return nil, errIOf("resource: invalid header (lmax=%d mmax=%d nside=%d)", lmax, mmax, nside)
	}

	nEntries := 4 * (mmax + 1)
	tableBytes := nEntries * 8
	if int64(len(data)) < headerSize+tableBytes {
		return nil, errIOf("resource: truncated offsets table")
	}
	return &File{
		LMax:  int(lmax),
		MMax:  int(mmax),
		NSide: int(nside),
		Data:  data,
	}, nil
}

// Close unmaps the file if it was produced by Load.
func (f *File) Close() error {
	if f.mapped == nil {
		return nil
	}
	err := unix.Munmap(f.mapped)
	f.mapped = nil
	return err
}

func (f *File) entry(m int, odd bool) (offset, length int64) {
	idx := 4*m + 2*boolToInt(odd)
	base := headerSize + idx*8
	offset = int64(binary.LittleEndian.Uint64(f.Data[base : base+8]))
	length = int64(binary.LittleEndian.Uint64(f.Data[base+8 : base+16]))
	return
}

// Blob returns the butterfly blob bytes for (m, odd), or nil if the
// resource file marks it missing (offset == 0).
func (f *File) Blob(m int, odd bool) []byte {
	offset, length := f.entry(m, odd)
	if offset == 0 {
		return nil
	}
	return f.Data[offset : offset+length]
}

// HasBlob reports whether (m, odd) is present in the resource file.
func (f *File) HasBlob(m int, odd bool) bool {
	offset, _ := f.entry(m, odd)
	return offset != 0
}

// BlobDigest returns the BLAKE3 content fingerprint of the (m, odd)
// blob. Used by the planner's debug/benchmark path to confirm that a
// node-local copy of a blob (made when NoResourceCopy is false) is
// byte-identical to the mmap'd original (spec.md §8 scenario 6).
func (f *File) BlobDigest(m int, odd bool) ([32]byte, bool) {
	blob := f.Blob(m, odd)
	if blob == nil {
		return [32]byte{}, false
	}
	return blake3.Sum256(blob), true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
