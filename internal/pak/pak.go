// Package pak reads and writes .pak asset archives.
//
// Layout (little-endian):
//
//	[entryCount int32][tableOffset int64]
//	[gzip blob]...                       one per packed file
//	[name string][fileType string][originalSize int64][compressedSize int64][index int64]...
//
// Strings are UTF-8 prefixed with their byte length as a uvarint. Every
// file is compressed on its own so a single entry can be read without
// touching the rest of the archive. There is no magic number; archives
// written by the editor carry none.
package pak

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the size of the fixed header preceding the data region.
const HeaderSize = 4 + 8

// maxStringLen bounds names read from the table.
const maxStringLen = 4096

var (
	ErrNotFound         = errors.New("entry not found in archive")
	ErrMalformedArchive = errors.New("malformed pak archive")
	ErrDuplicateEntry   = errors.New("duplicate entry name")
	ErrUnsupportedType  = errors.New("unsupported entry type")
)

// Entry describes one packed file.
type Entry struct {
	Name           string `json:"name"`
	FileType       string `json:"file_type"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize int64  `json:"compressed_size"`
	Index          int64  `json:"index"`
}

// FullName returns the entry name with its file type appended.
func (e Entry) FullName() string {
	if e.FileType == "" {
		return e.Name
	}
	return e.Name + "." + e.FileType
}

func writeString(w io.Writer, s string) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("string length %d exceeds %d", n, maxStringLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeEntry(w io.Writer, e Entry) error {
	if err := writeString(w, e.Name); err != nil {
		return err
	}
	if err := writeString(w, e.FileType); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, [3]int64{e.OriginalSize, e.CompressedSize, e.Index})
}

func readEntry(r *bufio.Reader) (Entry, error) {
	var e Entry
	var err error
	if e.Name, err = readString(r); err != nil {
		return e, err
	}
	if e.FileType, err = readString(r); err != nil {
		return e, err
	}
	var nums [3]int64
	if err := binary.Read(r, binary.LittleEndian, &nums); err != nil {
		return e, err
	}
	e.OriginalSize, e.CompressedSize, e.Index = nums[0], nums[1], nums[2]
	return e, nil
}
