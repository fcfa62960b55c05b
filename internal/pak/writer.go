package pak

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/logging"
	"github.com/FlamingRiot/Uniray-sub000/internal/metrics"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
)

type writeOptions struct {
	recursive bool
	level     int
	logger    *zap.Logger
}

// Option configures CreatePakFile.
type Option func(*writeOptions)

// WithRecursive also packs the files of sub-folders, naming their entries
// by their path relative to the packed folder ("trees/oak").
func WithRecursive() Option {
	return func(o *writeOptions) { o.recursive = true }
}

// WithLevel sets the gzip compression level.
func WithLevel(level int) Option {
	return func(o *writeOptions) { o.level = level }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *writeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Summary reports the result of a build.
type Summary struct {
	Path            string
	Entries         []Entry
	TableOffset     int64
	OriginalBytes   int64
	CompressedBytes int64
	Duration        time.Duration
}

type source struct {
	name string
	ext  string
	path string
}

// CreatePakFile packs the files of folder into an archive at outputPath.
// Only direct File children are packed unless WithRecursive is given. The
// archive is written to a temporary file next to outputPath and renamed
// into place once complete.
func CreatePakFile(ctx context.Context, folder *models.Folder, outputPath string, opts ...Option) (*Summary, error) {
	o := writeOptions{level: gzip.DefaultCompression, logger: logging.Named("pak")}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	sum, err := createPakFile(ctx, folder, outputPath, o)
	if err != nil {
		metrics.RecordPakBuild(time.Since(start), 0, 0, 0, false)
		return nil, err
	}
	sum.Duration = time.Since(start)
	metrics.RecordPakBuild(sum.Duration, len(sum.Entries), sum.OriginalBytes, sum.CompressedBytes, true)

	o.logger.Info("pak archive created",
		zap.String("path", sum.Path),
		zap.Int("entries", len(sum.Entries)),
		zap.Int64("original_bytes", sum.OriginalBytes),
		zap.Int64("compressed_bytes", sum.CompressedBytes),
		zap.Duration("duration", sum.Duration))
	return sum, nil
}

func createPakFile(ctx context.Context, folder *models.Folder, outputPath string, o writeOptions) (*Summary, error) {
	if folder == nil {
		return nil, fmt.Errorf("nil folder")
	}
	sources, err := collect(folder, "", o.recursive)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".pak-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	// Placeholder header, backpatched once the table offset is known
	if _, err := tmp.Write(make([]byte, HeaderSize)); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	sum := &Summary{Path: outputPath, Entries: make([]Entry, 0, len(sources))}
	offset := int64(HeaderSize)
	var blob bytes.Buffer

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := os.ReadFile(src.path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.path, err)
		}

		blob.Reset()
		zw, err := gzip.NewWriterLevel(&blob, o.level)
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		if _, err := zw.Write(raw); err != nil {
			return nil, fmt.Errorf("compress %s: %w", src.path, err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress %s: %w", src.path, err)
		}

		if _, err := tmp.Write(blob.Bytes()); err != nil {
			return nil, fmt.Errorf("write %s: %w", src.name, err)
		}

		entry := Entry{
			Name:           src.name,
			FileType:       src.ext,
			OriginalSize:   int64(len(raw)),
			CompressedSize: int64(blob.Len()),
			Index:          offset,
		}
		sum.Entries = append(sum.Entries, entry)
		sum.OriginalBytes += entry.OriginalSize
		sum.CompressedBytes += entry.CompressedSize
		offset += entry.CompressedSize

		o.logger.Debug("packed entry",
			zap.String("name", entry.Name),
			zap.String("type", entry.FileType),
			zap.Int64("original_size", entry.OriginalSize),
			zap.Int64("compressed_size", entry.CompressedSize))
	}

	sum.TableOffset = offset
	bw := bufio.NewWriter(tmp)
	for _, e := range sum.Entries {
		if err := writeEntry(bw, e); err != nil {
			return nil, fmt.Errorf("write table: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("write table: %w", err)
	}

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(int32(len(sum.Entries))))
	binary.LittleEndian.PutUint64(header[4:12], uint64(sum.TableOffset))
	if _, err := tmp.WriteAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("backpatch header: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpName, outputPath); err != nil {
		return nil, fmt.Errorf("rename archive: %w", err)
	}
	committed = true
	return sum, nil
}

// collect lists the files to pack in children order, rejecting duplicate
// entry names.
func collect(folder *models.Folder, prefix string, recursive bool) ([]source, error) {
	var sources []source
	seen := make(map[string]string)

	var visit func(f *models.Folder, prefix string) error
	visit = func(f *models.Folder, prefix string) error {
		for _, child := range f.Children() {
			switch u := child.(type) {
			case *models.File:
				name := u.Name()
				if prefix != "" {
					name = path.Join(prefix, name)
				}
				if other, dup := seen[name]; dup {
					return fmt.Errorf("%w: %q (%s and %s)", ErrDuplicateEntry, name, other, u.Path())
				}
				seen[name] = u.Path()
				sources = append(sources, source{
					name: name,
					ext:  u.Extension(),
					path: filepath.FromSlash(u.Path()),
				})
			case *models.Folder:
				if recursive {
					if err := visit(u, path.Join(prefix, u.Name())); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	if err := visit(folder, prefix); err != nil {
		return nil, err
	}
	return sources, nil
}
