package asset

import "sync"

// Blob is an asset kept as undecoded bytes. It satisfies Texture, Model
// and Sound and is what RawLoader produces.
type Blob struct {
	Name string
	Ext  string
	Kind Kind

	mu       sync.Mutex
	data     []byte
	released bool
}

// Data returns the asset bytes, nil once released.
func (b *Blob) Data() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Released reports whether Release was called.
func (b *Blob) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Release drops the bytes.
func (b *Blob) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	b.released = true
	return nil
}

// RawLoader is a Loader that keeps assets as bytes. It is used by the CLI
// and by tools that have no rendering context.
type RawLoader struct{}

func (RawLoader) LoadTexture(name, ext string, data []byte) (Texture, error) {
	return newBlob(name, ext, KindTexture, data), nil
}

func (RawLoader) LoadModel(name, ext string, data []byte) (Model, error) {
	return newBlob(name, ext, KindModel, data), nil
}

func (RawLoader) LoadSound(name, ext string, data []byte) (Sound, error) {
	return newBlob(name, ext, KindSound, data), nil
}

func newBlob(name, ext string, kind Kind, data []byte) *Blob {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Blob{Name: name, Ext: ext, Kind: kind, data: buf}
}
