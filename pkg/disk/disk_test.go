package disk

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/blacktop/go-hfs/internal/testimg"
	"github.com/blacktop/go-hfs/types"
	"github.com/dsnet/compress/bzip2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func compressXZ(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func compressBZip2(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, nil)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeImage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDetect(t *testing.T) {
	img := testimg.New().Bytes()

	tests := []struct {
		name    string
		data    []byte
		want    ImageType
		wantErr bool
	}{
		{name: "raw", data: img, want: Raw},
		{name: "xz", data: compressXZ(t, img), want: XZ},
		{name: "bzip2", data: compressBZip2(t, img), want: BZip2},
		{name: "empty", data: nil, want: Unknown, wantErr: true},
		{name: "zeros", data: make([]byte, 4096), want: Unknown, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(bytes.NewReader(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownImage)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen(t *testing.T) {
	img := testimg.New().Bytes()

	tests := []struct {
		name string
		file string
		data []byte
		conf *Config
	}{
		{name: "raw", file: "disk.img", data: img},
		{name: "xz", file: "disk.img.xz", data: compressXZ(t, img)},
		{name: "bzip2", file: "disk.img.bz2", data: compressBZip2(t, img)},
		{name: "cached", file: "disk.img", data: img, conf: &Config{CacheBlocks: 2, CacheBlockSize: 4096}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.conf == nil {
				tt.conf = &Config{TempDir: t.TempDir()}
			}
			dev, err := Open(writeImage(t, tt.file, tt.data), tt.conf)
			require.NoError(t, err)

			assert.Equal(t, uint64(len(img)), dev.GetSize())

			got := make([]byte, len(img))
			_, err = dev.ReadAt(got, 0)
			require.NoError(t, err)
			assert.Equal(t, img, got)

			hdr, err := types.ReadVolumeHeader(dev)
			require.NoError(t, err)
			assert.Equal(t, uint16(types.HFSPlusSigWord), hdr.Signature)

			require.NoError(t, dev.Close())
		})
	}
}

func TestOpenRemovesInflatedImage(t *testing.T) {
	tmp := t.TempDir()
	dev, err := Open(writeImage(t, "disk.img.xz", compressXZ(t, testimg.New().Bytes())), &Config{TempDir: tmp})
	require.NoError(t, err)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, dev.Close())
	entries, err = os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenUnknown(t *testing.T) {
	// unrecognised images open raw and are left to the volume header decoder
	dev, err := Open(writeImage(t, "junk.bin", []byte("not a disk image at all")), nil)
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, uint64(23), dev.GetSize())
	_, err = types.ReadVolumeHeader(dev)
	assert.ErrorIs(t, err, types.ErrMalformedHeader)

	img := testimg.New().Bytes()
	copy(img[types.VolumeHeaderOffset:], "XX")
	dev, err = Open(writeImage(t, "badsig.img", img), nil)
	require.NoError(t, err)
	defer dev.Close()
	_, err = types.ReadVolumeHeader(dev)
	assert.ErrorIs(t, err, types.ErrMalformedHeader)

	_, err = Open(filepath.Join(t.TempDir(), "missing.img"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCachedReadAt(t *testing.T) {
	data := make([]byte, 10_000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	c, err := NewCached(NewGeneric(bytes.NewReader(data), int64(len(data))), 2, 1024)
	require.NoError(t, err)
	defer c.Close()

	tests := []struct {
		name    string
		off     int64
		length  int
		wantN   int
		wantErr error
	}{
		{name: "within chunk", off: 10, length: 100, wantN: 100},
		{name: "across chunks", off: 1000, length: 3000, wantN: 3000},
		{name: "last partial chunk", off: 9990, length: 10, wantN: 10},
		{name: "past end", off: 9995, length: 10, wantN: 5, wantErr: io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.length)
			n, err := c.ReadAt(buf, tt.off)
			assert.Equal(t, tt.wantN, n)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, data[tt.off:tt.off+int64(n)], buf[:n])
		})
	}
}

func TestReadFile(t *testing.T) {
	data := []byte("0123456789abcdef")
	devs := map[string]Device{
		"generic": NewGeneric(bytes.NewReader(data), int64(len(data))),
	}
	cached, err := NewCached(NewGeneric(bytes.NewReader(data), int64(len(data))), 1, 4)
	require.NoError(t, err)
	devs["cached"] = cached

	for name, dev := range devs {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			w := bufio.NewWriter(&out)
			require.NoError(t, dev.ReadFile(w, 3, 9))
			require.NoError(t, w.Flush())
			assert.Equal(t, "3456789ab", out.String())
		})
	}
}

func TestReadExact(t *testing.T) {
	r := bytes.NewReader([]byte("hello"))

	got, err := ReadExact(r, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("ell"), got)

	_, err = ReadExact(r, 3, 5)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
