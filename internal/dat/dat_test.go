package dat

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/FlamingRiot/Uniray-sub000/internal/scene"
)

func sampleScene() *scene.Scene {
	s := scene.New("level1")
	rock := scene.NewModel("rock 1", "rock", "rock")
	rock.Placement = scene.Placement{X: 1.5, Y: -2.25, Z: 3.125, Yaw: 90, Pitch: 12.5, Roll: -0.3}
	rock.Transform[12] = 1.5
	tree := scene.NewModel("tree", "oak", "bark")
	tree.Placement = scene.Placement{X: 0.1, Y: 0.2, Z: 0.3}
	cam := scene.NewCamera("main")
	cam.Target = scene.Vector3{X: 1, Y: 2, Z: 3}
	s.Add(rock, cam, tree)
	return s
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) <= 1e-5
}

func TestRoundTrip(t *testing.T) {
	in := sampleScene()
	data, err := EncodeScene(in)
	if err != nil {
		t.Fatalf("EncodeScene: %v", err)
	}
	out, err := DecodeScene(data, "level1")
	if err != nil {
		t.Fatalf("DecodeScene: %v", err)
	}
	if len(out.Objects) != 3 {
		t.Fatalf("decoded %d objects, want 3", len(out.Objects))
	}

	inModels, inCams := in.Split()
	outModels, outCams := out.Split()
	if len(outModels) != 2 || len(outCams) != 1 {
		t.Fatalf("decoded %d models and %d cameras", len(outModels), len(outCams))
	}
	for i, want := range inModels {
		got := outModels[i]
		if got.ModelID != want.ModelID || got.TextureID != want.TextureID || got.ID != want.ID {
			t.Errorf("model %d keys = %+v, want %+v", i, got, want)
		}
		gp, wp := got.Placement, want.Placement
		for _, pair := range [][2]float32{{gp.X, wp.X}, {gp.Y, wp.Y}, {gp.Z, wp.Z}, {gp.Yaw, wp.Yaw}, {gp.Pitch, wp.Pitch}, {gp.Roll, wp.Roll}} {
			if !near(pair[0], pair[1]) {
				t.Errorf("model %d placement %v, want %v", i, gp, wp)
				break
			}
		}
		for j := range want.Transform {
			if !near(got.Transform[j], want.Transform[j]) {
				t.Errorf("model %d transform[%d] = %v, want %v", i, j, got.Transform[j], want.Transform[j])
			}
		}
	}
	if *outCams[0] != *inCams[0] {
		t.Errorf("camera = %+v, want %+v", outCams[0], inCams[0])
	}
}

func TestHeaderLayout(t *testing.T) {
	data, err := EncodeScene(sampleScene())
	if err != nil {
		t.Fatal(err)
	}
	if got := int32(binary.LittleEndian.Uint32(data[0:4])); got != 3 {
		t.Errorf("objectCount = %d, want 3", got)
	}
	h, err := ReadHeader(data)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if len(h.Entries) != 2 || h.Entries[0].Name != SectionModel || h.Entries[1].Name != SectionCamera {
		t.Fatalf("entries = %+v", h.Entries)
	}
	if h.Entries[0].Index != HeaderSize {
		t.Errorf("first section at %d, want %d", h.Entries[0].Index, HeaderSize)
	}
	last := h.Entries[1]
	if last.Index+last.Size != h.TableOffset {
		t.Errorf("table offset %d does not follow last section (%d)", h.TableOffset, last.Index+last.Size)
	}
}

func TestEmptyScene(t *testing.T) {
	data, err := EncodeScene(scene.New("empty"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := DecodeScene(data, "empty")
	if err != nil {
		t.Fatalf("DecodeScene: %v", err)
	}
	if len(s.Objects) != 0 {
		t.Errorf("got %d objects", len(s.Objects))
	}
}

func TestPassphrase(t *testing.T) {
	data, err := EncodeScene(sampleScene(), WithPassphrase("correct horse"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeScene(data, "x", WithPassphrase("correct horse")); err != nil {
		t.Fatalf("decode with passphrase: %v", err)
	}
	if _, err := DecodeScene(data, "x", WithPassphrase("wrong")); !errors.Is(err, ErrCrypto) {
		t.Errorf("wrong passphrase error = %v, want ErrCrypto", err)
	}
	if _, err := DecodeScene(data, "x"); !errors.Is(err, ErrCrypto) {
		t.Errorf("missing passphrase error = %v, want ErrCrypto", err)
	}
}

func TestMalformed(t *testing.T) {
	good, err := EncodeScene(sampleScene())
	if err != nil {
		t.Fatal(err)
	}
	clone := func() []byte { return append([]byte(nil), good...) }

	tests := []struct {
		name string
		data func() []byte
		want error
	}{
		{"truncated header", func() []byte { return good[:HeaderSize-1] }, ErrMalformed},
		{"table offset past end", func() []byte {
			b := clone()
			binary.LittleEndian.PutUint32(b[4:8], uint32(len(b)+1))
			return b
		}, ErrMalformed},
		{"truncated table", func() []byte { return good[:len(good)-2] }, ErrMalformed},
		{"no sections", func() []byte {
			b := clone()
			h, _ := ReadHeader(b)
			return b[:h.TableOffset]
		}, ErrMalformed},
		{"object count mismatch", func() []byte {
			b := clone()
			binary.LittleEndian.PutUint32(b[0:4], 7)
			return b
		}, ErrMalformed},
		{"wrong key", func() []byte {
			b := clone()
			for i := 8; i < 8+KeySize; i++ {
				b[i] ^= 0x5a
			}
			return b
		}, ErrCrypto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeScene(tt.data(), "x"); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenes", "level1", "level1.DAT")
	if err := WriteFile(context.Background(), sampleScene(), path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if s.Name != "level1" || len(s.Objects) != 3 {
		t.Errorf("read scene %q with %d objects", s.Name, len(s.Objects))
	}
}

func TestPKCS7(t *testing.T) {
	for n := 0; n < 40; n++ {
		in := make([]byte, n)
		padded := pkcs7Pad(in, 16)
		if len(padded)%16 != 0 || len(padded) <= n {
			t.Fatalf("pad(%d) produced %d bytes", n, len(padded))
		}
		out, err := pkcs7Unpad(padded, 16)
		if err != nil || len(out) != n {
			t.Fatalf("unpad(%d) = %d bytes, %v", n, len(out), err)
		}
	}
	if _, err := pkcs7Unpad([]byte{1, 2, 3, 0}, 16); !errors.Is(err, ErrCrypto) {
		t.Errorf("zero padding error = %v", err)
	}
}
