// Package dat encodes scenes to the encrypted .DAT format and back.
//
// Layout (little-endian):
//
//	[objectCount int32][tableOffset int32][key 32 bytes][iv 16 bytes]
//	[AES-256-CBC MODEL JSON][AES-256-CBC CAMERA JSON]
//	[sectionName string][index int32][size int32]...   up to end of file
//
// By default the AES key is stored in the header in clear. WithPassphrase
// stores a random salt in the key slot instead and derives the key from
// the passphrase with scrypt.
package dat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/logging"
	"github.com/FlamingRiot/Uniray-sub000/internal/metrics"
	"github.com/FlamingRiot/Uniray-sub000/internal/scene"
)

// HeaderSize is the size of the fixed header.
const HeaderSize = 4 + 4 + KeySize + IVSize

// Section names.
const (
	SectionModel  = "MODEL"
	SectionCamera = "CAMERA"
)

const maxSectionName = 256

var (
	ErrMalformed = errors.New("malformed dat file")
	ErrCrypto    = errors.New("dat decryption failed")
)

// Entry locates one encrypted section.
type Entry struct {
	Name  string `json:"name"`
	Index int32  `json:"index"`
	Size  int32  `json:"size"`
}

// Header is the parsed fixed header and section table of a file.
type Header struct {
	ObjectCount int32
	TableOffset int32
	Key         []byte
	IV          []byte
	Entries     []Entry
}

type options struct {
	passphrase string
	logger     *zap.Logger
}

// Option configures encoding and decoding.
type Option func(*options)

// WithPassphrase derives the AES key from passphrase instead of storing
// it in the header. Files written with a passphrase need the same option
// to be read.
func WithPassphrase(passphrase string) Option {
	return func(o *options) { o.passphrase = passphrase }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.Named("dat")}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// EncodeScene serializes and encrypts a scene.
func EncodeScene(s *scene.Scene, opts ...Option) ([]byte, error) {
	start := time.Now()
	data, err := encodeScene(s, buildOptions(opts))
	metrics.RecordDatOperation("encode", time.Since(start), err == nil)
	return data, err
}

func encodeScene(s *scene.Scene, o options) ([]byte, error) {
	ms, cs := s.Split()
	if ms == nil {
		ms = []*scene.Model{}
	}
	if cs == nil {
		cs = []*scene.Camera{}
	}
	modelJSON, err := json.Marshal(ms)
	if err != nil {
		return nil, fmt.Errorf("encode models: %w", err)
	}
	cameraJSON, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("encode cameras: %w", err)
	}

	slot, err := randomBytes(KeySize)
	if err != nil {
		return nil, err
	}
	iv, err := randomBytes(IVSize)
	if err != nil {
		return nil, err
	}
	key := slot
	if o.passphrase != "" {
		if key, err = deriveKey(o.passphrase, slot); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, HeaderSize))

	sections := []struct {
		name      string
		plaintext []byte
	}{
		{SectionModel, modelJSON},
		{SectionCamera, cameraJSON},
	}
	entries := make([]Entry, 0, len(sections))
	for _, sec := range sections {
		ct, err := encryptCBC(key, iv, sec.plaintext)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: sec.name, Index: int32(buf.Len()), Size: int32(len(ct))})
		buf.Write(ct)
	}

	tableOffset := buf.Len()
	if tableOffset > 1<<31-1 {
		return nil, fmt.Errorf("scene %q is too large for the dat format", s.Name)
	}
	for _, e := range entries {
		writeString(&buf, e.Name)
		binary.Write(&buf, binary.LittleEndian, [2]int32{e.Index, e.Size})
	}

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[0:4], uint32(int32(len(ms)+len(cs))))
	binary.LittleEndian.PutUint32(out[4:8], uint32(int32(tableOffset)))
	copy(out[8:8+KeySize], slot)
	copy(out[8+KeySize:HeaderSize], iv)

	o.logger.Debug("scene encoded",
		zap.String("scene", s.Name),
		zap.Int("models", len(ms)),
		zap.Int("cameras", len(cs)),
		zap.Int("bytes", len(out)))
	return out, nil
}

// ReadHeader parses the header and section table of data without
// decrypting anything.
func ReadHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(data))
	}
	h := &Header{
		ObjectCount: int32(binary.LittleEndian.Uint32(data[0:4])),
		TableOffset: int32(binary.LittleEndian.Uint32(data[4:8])),
		Key:         data[8 : 8+KeySize],
		IV:          data[8+KeySize : HeaderSize],
	}
	if h.ObjectCount < 0 {
		return nil, fmt.Errorf("%w: negative object count %d", ErrMalformed, h.ObjectCount)
	}
	if h.TableOffset < HeaderSize || int(h.TableOffset) > len(data) {
		return nil, fmt.Errorf("%w: table offset %d outside [%d, %d]", ErrMalformed, h.TableOffset, HeaderSize, len(data))
	}

	r := bufio.NewReader(bytes.NewReader(data[h.TableOffset:]))
	for {
		if _, err := r.Peek(1); err == io.EOF {
			break
		}
		var e Entry
		var err error
		if e.Name, err = readString(r); err != nil {
			return nil, fmt.Errorf("%w: section table: %v", ErrMalformed, err)
		}
		var nums [2]int32
		if err := binary.Read(r, binary.LittleEndian, &nums); err != nil {
			return nil, fmt.Errorf("%w: section %q: %v", ErrMalformed, e.Name, err)
		}
		e.Index, e.Size = nums[0], nums[1]
		if e.Size < 0 || e.Index < HeaderSize || int64(e.Index)+int64(e.Size) > int64(h.TableOffset) {
			return nil, fmt.Errorf("%w: section %q lies outside the payload", ErrMalformed, e.Name)
		}
		h.Entries = append(h.Entries, e)
	}
	return h, nil
}

// Entry returns the section named name.
func (h *Header) Entry(name string) (Entry, bool) {
	for _, e := range h.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// DecodeScene decrypts and parses data into a scene named name.
func DecodeScene(data []byte, name string, opts ...Option) (*scene.Scene, error) {
	start := time.Now()
	s, err := decodeScene(data, name, buildOptions(opts))
	metrics.RecordDatOperation("decode", time.Since(start), err == nil)
	return s, err
}

func decodeScene(data []byte, name string, o options) (*scene.Scene, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}

	key := h.Key
	if o.passphrase != "" {
		if key, err = deriveKey(o.passphrase, h.Key); err != nil {
			return nil, err
		}
	}

	var ms []*scene.Model
	if err := decodeSection(data, h, key, SectionModel, &ms); err != nil {
		return nil, err
	}
	var cs []*scene.Camera
	if err := decodeSection(data, h, key, SectionCamera, &cs); err != nil {
		return nil, err
	}

	if int(h.ObjectCount) != len(ms)+len(cs) {
		return nil, fmt.Errorf("%w: header counts %d objects, sections hold %d",
			ErrMalformed, h.ObjectCount, len(ms)+len(cs))
	}
	return scene.FromParts(name, ms, cs), nil
}

func decodeSection(data []byte, h *Header, key []byte, section string, v any) error {
	e, ok := h.Entry(section)
	if !ok {
		return fmt.Errorf("%w: missing %s section", ErrMalformed, section)
	}
	plaintext, err := decryptCBC(key, h.IV, data[e.Index:e.Index+e.Size])
	if err != nil {
		return fmt.Errorf("section %s: %w", section, err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: section %s is not valid JSON: %v", ErrCrypto, section, err)
	}
	return nil
}

// WriteFile encodes s and writes it to path atomically.
func WriteFile(ctx context.Context, s *scene.Scene, path string, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeScene(s, opts...)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".dat-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// ReadFile decodes the scene stored at path. The scene is named after the
// file without its extension.
func ReadFile(path string, opts ...Option) (*scene.Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	s, err := DecodeScene(data, name, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
	buf.Write(lenBuf[:n])
	buf.WriteString(s)
}

func readString(r *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > maxSectionName {
		return "", fmt.Errorf("section name length %d exceeds %d", n, maxSectionName)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
