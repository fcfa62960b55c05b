package pak

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/FlamingRiot/Uniray-sub000/internal/asset"
	"github.com/FlamingRiot/Uniray-sub000/internal/metrics"
)

// Reader gives access to the entries of an archive. The header and table
// are read when the reader is created; payloads are read on demand.
type Reader struct {
	r           io.ReaderAt
	closer      io.Closer
	size        int64
	tableOffset int64
	entries     []Entry
	byName      map[string]int
}

// Open opens the archive at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header and entry table of an archive of the given
// size.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	if size < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedArchive, size)
	}

	var header [HeaderSize]byte
	if _, err := ra.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedArchive, err)
	}
	count := int32(binary.LittleEndian.Uint32(header[0:4]))
	tableOffset := int64(binary.LittleEndian.Uint64(header[4:12]))

	if count < 0 {
		return nil, fmt.Errorf("%w: negative entry count %d", ErrMalformedArchive, count)
	}
	if tableOffset < HeaderSize || tableOffset > size {
		return nil, fmt.Errorf("%w: table offset %d outside [%d, %d]", ErrMalformedArchive, tableOffset, HeaderSize, size)
	}

	r := &Reader{
		r:           ra,
		size:        size,
		tableOffset: tableOffset,
		entries:     make([]Entry, 0, min(int(count), 1024)),
		byName:      make(map[string]int, min(int(count), 1024)),
	}

	table := bufio.NewReader(io.NewSectionReader(ra, tableOffset, size-tableOffset))
	for i := 0; i < int(count); i++ {
		e, err := readEntry(table)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformedArchive, i, err)
		}
		if !e.within(tableOffset) {
			return nil, fmt.Errorf("%w: entry %q lies outside the data region", ErrMalformedArchive, e.Name)
		}
		if _, dup := r.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: %w: %q", ErrMalformedArchive, ErrDuplicateEntry, e.Name)
		}
		r.byName[e.Name] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// Close releases the underlying file when the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Entries returns the entries in table order.
func (r *Reader) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Entry looks up an entry by name.
func (r *Reader) Entry(name string) (Entry, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Len returns the number of entries.
func (r *Reader) Len() int { return len(r.entries) }

// TableOffset returns the offset of the entry table, which is also the end
// of the data region.
func (r *Reader) TableOffset() int64 { return r.tableOffset }

// LoadRawFile returns the decompressed bytes of the named entry.
func (r *Reader) LoadRawFile(name string) ([]byte, error) {
	e, ok := r.Entry(name)
	if !ok {
		metrics.RecordPakRead("not_found")
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	data, err := r.read(e)
	if err != nil {
		metrics.RecordPakRead("malformed")
		return nil, err
	}
	metrics.RecordPakRead("ok")
	return data, nil
}

// within reports whether the entry's payload lies between the header and
// the table. OriginalSize must leave room for the one-byte overrun check in
// read.
func (e Entry) within(tableOffset int64) bool {
	if e.OriginalSize < 0 || e.OriginalSize == math.MaxInt64 || e.CompressedSize < 0 {
		return false
	}
	if e.Index < HeaderSize || e.Index > tableOffset {
		return false
	}
	return e.CompressedSize <= tableOffset-e.Index
}

func (r *Reader) read(e Entry) ([]byte, error) {
	blob := make([]byte, e.CompressedSize)
	if _, err := r.r.ReadAt(blob, e.Index); err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrMalformedArchive, e.Name, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedArchive, e.Name, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, e.OriginalSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress %q: %v", ErrMalformedArchive, e.Name, err)
	}
	if int64(len(data)) != e.OriginalSize {
		return nil, fmt.Errorf("%w: %q decompressed to %d bytes, table says %d",
			ErrMalformedArchive, e.Name, len(data), e.OriginalSize)
	}
	return data, nil
}

// Load decodes the named entry with the loader method matching its file
// type.
func (r *Reader) Load(l asset.Loader, name string) (asset.Releaser, asset.Kind, error) {
	e, ok := r.Entry(name)
	if !ok {
		metrics.RecordPakRead("not_found")
		return nil, asset.KindUnknown, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	kind := asset.KindOf(e.FileType)
	switch kind {
	case asset.KindModel, asset.KindTexture, asset.KindSound:
	default:
		return nil, kind, fmt.Errorf("%w: %q has type %q", ErrUnsupportedType, name, e.FileType)
	}
	data, err := r.LoadRawFile(name)
	if err != nil {
		return nil, kind, err
	}
	res, err := asset.Load(l, kind, path.Base(e.Name), e.FileType, data)
	return res, kind, err
}

func (r *Reader) loadKind(l asset.Loader, name string, want asset.Kind) (asset.Releaser, error) {
	e, ok := r.Entry(name)
	if !ok {
		metrics.RecordPakRead("not_found")
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if kind := asset.KindOf(e.FileType); kind != want {
		return nil, fmt.Errorf("%w: %q is a %s, not a %s", ErrUnsupportedType, name, kind, want)
	}
	res, _, err := r.Load(l, name)
	return res, err
}

// LoadTextureFromPak decodes a texture entry.
func (r *Reader) LoadTextureFromPak(l asset.Loader, name string) (asset.Texture, error) {
	return r.loadKind(l, name, asset.KindTexture)
}

// LoadModelFromPak decodes a model entry. The loader receives the buffer
// directly.
func (r *Reader) LoadModelFromPak(l asset.Loader, name string) (asset.Model, error) {
	return r.loadKind(l, name, asset.KindModel)
}

// LoadSoundFromPak decodes a sound entry.
func (r *Reader) LoadSoundFromPak(l asset.Loader, name string) (asset.Sound, error) {
	return r.loadKind(l, name, asset.KindSound)
}

// Extract writes every entry to dir as <name>.<type> and returns the
// written paths.
func (r *Reader) Extract(ctx context.Context, dir string) ([]string, error) {
	var written []string
	for _, e := range r.entries {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		rel := e.FullName()
		if !filepath.IsLocal(filepath.FromSlash(rel)) || strings.Contains(rel, `\`) {
			return written, fmt.Errorf("%w: entry name %q escapes the output directory", ErrMalformedArchive, e.Name)
		}

		data, err := r.LoadRawFile(e.Name)
		if err != nil {
			return written, err
		}
		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return written, err
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}
