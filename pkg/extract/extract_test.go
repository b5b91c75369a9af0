package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blacktop/go-hfs/internal/testimg"
	"github.com/blacktop/go-hfs/pkg/btree"
	"github.com/blacktop/go-hfs/pkg/catalog"
	"github.com/blacktop/go-hfs/pkg/disk"
	"github.com/blacktop/go-hfs/pkg/fork"
	"github.com/blacktop/go-hfs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type volume struct {
	cat *catalog.Catalog
	rdr *fork.Reader
}

// load lays out the image once so it can back several extractors
func load(t *testing.T, b *testimg.Builder) *volume {
	t.Helper()
	img := b.Bytes()
	tree, err := btree.Open(img[b.CatalogStart : b.CatalogStart+int64(b.CatalogFork.LogicalSize)])
	require.NoError(t, err)
	return &volume{
		cat: catalog.Build(tree),
		rdr: fork.NewReader(disk.NewGeneric(bytes.NewReader(img), int64(len(img))), b.BlockSize),
	}
}

func (v *volume) extractor(t *testing.T, conf *Config) *Extractor {
	t.Helper()
	e, err := New(v.cat, v.rdr, conf)
	require.NoError(t, err)
	return e
}

func newExtractor(t *testing.T, b *testimg.Builder, conf *Config) *Extractor {
	t.Helper()
	return load(t, b).extractor(t, conf)
}

func only(t *testing.T, rep *Report, path string) Outcome {
	t.Helper()
	outs := rep.Find(path)
	require.Len(t, outs, 1, "outcomes for %s", path)
	return outs[0]
}

func TestExtractSingleFile(t *testing.T) {
	data := []byte("0123456789")
	b := testimg.New()
	b.File(types.HFSRootFolderID, 16, "A", data)

	out := t.TempDir()
	rep := newExtractor(t, b, &Config{Output: out}).Run()

	o := only(t, rep, "A")
	assert.Equal(t, Extracted, o.Status)
	assert.Equal(t, types.CatalogNodeID(16), o.CNID)
	assert.Equal(t, int64(10), o.Bytes)
	assert.Equal(t, sha256Hex(data), o.Digest)
	assert.Equal(t, filepath.Join(out, "A"), o.Output)

	got, err := os.ReadFile(filepath.Join(out, "A"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.Equal(t, "sha256", rep.Digest)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, Summary{Extracted: 1, Bytes: 10}, rep.Summary())
}

func TestExtractTree(t *testing.T) {
	big := bytes.Repeat([]byte("hfs+"), 3*testimg.DefaultBlockSize/4+9)
	frag := bytes.Repeat([]byte{0x5A}, 2*testimg.DefaultBlockSize+1)

	b := testimg.New()
	b.Folder(types.HFSRootFolderID, 17, "Docs")
	b.Folder(17, 18, "Deep")
	b.File(18, 19, "big.bin", big)
	fd := b.Fragmented(frag)
	b.FileRecord(17, 20, "frag.bin", fd, types.ForkData{})
	b.Thread(20, 17, "frag.bin", types.HFSPlusFileThreadRecord)
	b.File(types.HFSRootFolderID, 21, "empty", nil)
	b.File(types.HFSRootFolderID, 22, "a/b", []byte("slash"))

	out := t.TempDir()
	rep := newExtractor(t, b, &Config{Output: out, Workers: 4}).Run()
	assert.Equal(t, Summary{Extracted: 4, Bytes: uint64(len(big) + len(frag) + 5)}, rep.Summary())

	for path, want := range map[string][]byte{
		"Docs/Deep/big.bin": big,
		"Docs/frag.bin":     frag,
		"empty":             {},
	} {
		o := only(t, rep, path)
		assert.Equal(t, Extracted, o.Status, path)
		assert.Equal(t, sha256Hex(want), o.Digest, path)

		got, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(path)))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want, got), path)
	}

	// HFS+ names may contain '/', which maps to ':' on disk
	o := only(t, rep, "a/b")
	assert.Equal(t, filepath.Join(out, "a:b"), o.Output)
}

func TestExtractExclusion(t *testing.T) {
	b := testimg.New()
	b.File(types.HFSRootFolderID, 16, ".journal", []byte("journal"))
	b.Folder(types.HFSRootFolderID, 17, "Private")
	b.File(17, 18, "secret", []byte("secret"))
	b.File(types.HFSRootFolderID, 19, "keep", []byte("keep"))
	vol := load(t, b)

	tests := []struct {
		name    string
		conf    Config
		skipped []string
		kept    []string
	}{
		{
			name:    "default excludes",
			skipped: []string{".journal"},
			kept:    []string{"keep", "Private/secret"},
		},
		{
			name:    "extra exclude",
			conf:    Config{Exclude: []string{"Private"}},
			skipped: []string{".journal", "Private/secret"},
			kept:    []string{"keep"},
		},
		{
			name: "no default excludes",
			conf: Config{NoDefaultExcludes: true},
			kept: []string{".journal", "keep", "Private/secret"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := t.TempDir()
			tt.conf.Output = out
			rep := vol.extractor(t, &tt.conf).Run()
			for _, p := range tt.skipped {
				o := only(t, rep, p)
				assert.Equal(t, Skipped, o.Status)
				assert.Equal(t, "excluded", o.Reason)
				assert.NoFileExists(t, filepath.Join(out, filepath.FromSlash(p)))
			}
			for _, p := range tt.kept {
				assert.Equal(t, Extracted, only(t, rep, p).Status)
			}
		})
	}
}

func TestExtractCollision(t *testing.T) {
	b := testimg.New()
	b.File(types.HFSRootFolderID, 16, "A", []byte("from image"))

	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "A"), []byte("existing"), 0o644))

	rep := newExtractor(t, b, &Config{Output: out}).Run()
	o := only(t, rep, "A")
	assert.Equal(t, Skipped, o.Status)
	assert.Equal(t, "output-collision", o.Reason)
	assert.ErrorIs(t, o.Err, ErrOutputCollision)

	got, err := os.ReadFile(filepath.Join(out, "A"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(got))
}

func TestExtractOutOfBounds(t *testing.T) {
	b := testimg.New()
	var fd types.ForkData
	fd.LogicalSize = 10
	fd.TotalBlocks = 1
	fd.Extents[0] = types.ExtentDescriptor{StartBlock: 10_000, BlockCount: 1}
	b.FileRecord(types.HFSRootFolderID, 16, "bad", fd, types.ForkData{})
	b.Thread(16, types.HFSRootFolderID, "bad", types.HFSPlusFileThreadRecord)
	b.File(types.HFSRootFolderID, 17, "good", []byte("ok"))

	out := t.TempDir()
	rep := newExtractor(t, b, &Config{Output: out}).Run()

	o := only(t, rep, "bad")
	assert.Equal(t, Skipped, o.Status)
	assert.Equal(t, "extent-out-of-bounds", o.Reason)
	assert.NoFileExists(t, filepath.Join(out, "bad"))

	assert.Equal(t, Extracted, only(t, rep, "good").Status)
}

func TestExtractIncompleteCopy(t *testing.T) {
	b := testimg.New()
	fd := b.Fork([]byte("short"))
	fd.LogicalSize = 3 * testimg.DefaultBlockSize
	b.FileRecord(types.HFSRootFolderID, 16, "short", fd, types.ForkData{})
	b.Thread(16, types.HFSRootFolderID, "short", types.HFSPlusFileThreadRecord)

	out := t.TempDir()
	rep := newExtractor(t, b, &Config{Output: out}).Run()

	o := only(t, rep, "short")
	assert.Equal(t, Failed, o.Status)
	assert.Equal(t, "incomplete-copy", o.Reason)
	assert.Equal(t, int64(testimg.DefaultBlockSize), o.Bytes)
	assert.NoFileExists(t, filepath.Join(out, "short"))
}

type staticOverflow map[string][]types.ExtentDescriptor

func (s staticOverflow) Extents(id types.CatalogNodeID, forkType uint8, start uint32) ([]types.ExtentDescriptor, error) {
	return s[fmt.Sprintf("%d/%d/%d", id, forkType, start)], nil
}

func TestExtractOverflow(t *testing.T) {
	bs := testimg.DefaultBlockSize
	first := bytes.Repeat([]byte{1}, bs)
	second := bytes.Repeat([]byte{2}, bs/2)

	b := testimg.New()
	var fd types.ForkData
	fd.LogicalSize = uint64(len(first) + len(second))
	fd.TotalBlocks = 2
	fd.Extents[0] = b.Alloc(first)
	b.Alloc(make([]byte, bs)) // keep the overflow extent apart
	next := b.Alloc(second)
	b.FileRecord(types.HFSRootFolderID, 16, "huge", fd, types.ForkData{})
	b.Thread(16, types.HFSRootFolderID, "huge", types.HFSPlusFileThreadRecord)
	b.File(types.HFSRootFolderID, 17, "small", []byte("small"))
	vol := load(t, b)

	t.Run("without resolver", func(t *testing.T) {
		out := t.TempDir()
		rep := vol.extractor(t, &Config{Output: out}).Run()

		o := only(t, rep, "huge")
		assert.Equal(t, Skipped, o.Status)
		assert.Equal(t, "overflow-extents", o.Reason)
		assert.NoFileExists(t, filepath.Join(out, "huge"))

		require.Len(t, rep.Overflow, 1)
		assert.Equal(t, OverflowFile{CNID: 16, Path: "huge", Fork: "data", TotalBlocks: 2, InlineBlocks: 1}, rep.Overflow[0])
		assert.Equal(t, Extracted, only(t, rep, "small").Status)
	})

	t.Run("with resolver", func(t *testing.T) {
		out := t.TempDir()
		e := vol.extractor(t, &Config{Output: out})
		e.Overflow = staticOverflow{"16/0/1": {next}}
		rep := e.Run()

		o := only(t, rep, "huge")
		require.Equal(t, Extracted, o.Status, o.Error)
		want := append(bytes.Clone(first), second...)
		assert.Equal(t, sha256Hex(want), o.Digest)

		got, err := os.ReadFile(filepath.Join(out, "huge"))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want, got))
	})

	t.Run("resolver without records", func(t *testing.T) {
		e := vol.extractor(t, &Config{Output: t.TempDir()})
		e.Overflow = staticOverflow{}
		o := only(t, e.Run(), "huge")
		assert.Equal(t, Skipped, o.Status)
		assert.Equal(t, "overflow-extents", o.Reason)
	})
}

func TestExtractPrefix(t *testing.T) {
	b := testimg.New()
	b.Folder(types.HFSRootFolderID, 17, "Docs")
	b.File(17, 18, "a.txt", []byte("a"))
	b.Folder(types.HFSRootFolderID, 19, "Other")
	b.File(19, 20, "b.txt", []byte("b"))
	b.File(types.HFSRootFolderID, 21, "Docsfile", []byte("c"))

	rep := newExtractor(t, b, &Config{Output: t.TempDir(), Prefix: []string{"/Docs/"}}).Run()
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, "Docs/a.txt", rep.Outcomes[0].Path)
}

func TestExtractResourceFork(t *testing.T) {
	b := testimg.New()
	data := b.Fork([]byte("data fork"))
	rsrc := b.Fork([]byte("resource fork"))
	b.FileRecord(types.HFSRootFolderID, 16, "Icon", data, rsrc)
	b.Thread(16, types.HFSRootFolderID, "Icon", types.HFSPlusFileThreadRecord)
	vol := load(t, b)

	t.Run("disabled", func(t *testing.T) {
		rep := vol.extractor(t, &Config{Output: t.TempDir()}).Run()
		assert.Len(t, rep.Outcomes, 1)
	})

	t.Run("enabled", func(t *testing.T) {
		out := t.TempDir()
		rep := vol.extractor(t, &Config{Output: out, ResourceForks: true}).Run()
		require.Len(t, rep.Outcomes, 2)

		o := only(t, rep, "Icon.rsrc")
		assert.Equal(t, "rsrc", o.Fork)
		assert.Equal(t, Extracted, o.Status)

		got, err := os.ReadFile(filepath.Join(out, "Icon.rsrc"))
		require.NoError(t, err)
		assert.Equal(t, "resource fork", string(got))
	})
}

func TestExtractPathFallbacks(t *testing.T) {
	b := testimg.New()
	b.Folder(types.HFSRootFolderID, 17, "Docs")
	// no thread records for these files
	b.FileRecord(17, 30, "orphan", b.Fork([]byte("orphan")), types.ForkData{})
	// an empty name shares its key with the parent's thread key, so use a parent without one
	b.FileRecord(90, 31, "", b.Fork([]byte("nameless")), types.ForkData{})
	// thread chain that never reaches the root
	b.FileRecord(types.HFSRootFolderID, 40, "looped", b.Fork([]byte("loop")), types.ForkData{})
	b.Thread(40, 41, "looped", types.HFSPlusFileThreadRecord)
	b.Thread(41, 40, "loop", types.HFSPlusFolderThreadRecord)

	out := t.TempDir()
	rep := newExtractor(t, b, &Config{Output: out}).Run()

	assert.Equal(t, Extracted, only(t, rep, "Docs/orphan").Status)
	assert.FileExists(t, filepath.Join(out, "Docs", "orphan"))
	assert.Equal(t, Extracted, only(t, rep, "31").Status)

	var looped []Outcome
	for _, o := range rep.Outcomes {
		if o.CNID == 40 {
			looped = append(looped, o)
		}
	}
	require.Len(t, looped, 1)
	assert.Equal(t, Skipped, looped[0].Status)
	assert.Equal(t, "path-cycle", looped[0].Reason)
}

func TestExtractPreserveTimes(t *testing.T) {
	b := testimg.New()
	b.File(types.HFSRootFolderID, 16, "A", []byte("times"))

	out := t.TempDir()
	rep := newExtractor(t, b, &Config{Output: out, PreserveTimes: true}).Run()
	require.Equal(t, Extracted, only(t, rep, "A").Status)

	fi, err := os.Stat(filepath.Join(out, "A"))
	require.NoError(t, err)
	want := time.Unix(3_700_000_000-types.HFSEpochDelta, 0)
	assert.True(t, fi.ModTime().Equal(want), "mod time %s, want %s", fi.ModTime(), want)
}

func TestNewUnsupportedDigest(t *testing.T) {
	_, err := New(nil, nil, &Config{Digest: "crc32"})
	assert.ErrorContains(t, err, "unsupported digest")
}

func TestNewHash(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "sha256", size: 32},
		{name: "SHA1", size: 20},
		{name: "md5", size: 16},
		{name: "sha512", size: 64},
		{name: "blake2b", size: 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newHash, err := NewHash(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.size, newHash().Size())
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "plain.txt", want: "plain.txt"},
		{name: "a/b", want: "a:b"},
		{name: "\x00\x00\x00\x00HFS+ Private Data", want: "HFS+ Private Data"},
		{name: "", want: "_"},
		{name: ".", want: "_"},
		{name: "..", want: "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.name), "Sanitize(%q)", tt.name)
	}
}

func TestReportWriters(t *testing.T) {
	b := testimg.New()
	b.File(types.HFSRootFolderID, 16, "A", []byte("0123456789"))
	b.File(types.HFSRootFolderID, 17, ".journal", []byte("j"))
	e := newExtractor(t, b, &Config{Output: t.TempDir()})
	e.Image = "test.img"
	rep := e.Run()

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, rep.WriteJSON(&buf))

		var got Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, rep.RunID, got.RunID)
		assert.Equal(t, "test.img", got.Image)
		require.Len(t, got.Outcomes, 2)
		assert.Equal(t, rep.Summary(), got.Summary())
		assert.NotContains(t, buf.String(), `"Err"`)
	})

	t.Run("plist", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, rep.WritePlist(&buf))
		assert.Contains(t, buf.String(), "<key>outcomes</key>")
		assert.Contains(t, buf.String(), "<string>test.img</string>")
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, rep.WriteTable(&buf))
		assert.Contains(t, buf.String(), ".journal")
		assert.Contains(t, buf.String(), "excluded")
		assert.Contains(t, buf.String(), "extracted=1, skipped=1, failed=0")
	})
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: ErrExcluded, want: "excluded"},
		{err: fmt.Errorf("wrapped: %w", ErrOutputCollision), want: "output-collision"},
		{err: ErrOverflowExtents, want: "overflow-extents"},
		{err: fork.ErrExtentOutOfBounds, want: "extent-out-of-bounds"},
		{err: fork.ErrIncompleteCopy, want: "incomplete-copy"},
		{err: catalog.ErrPathCycle, want: "path-cycle"},
		{err: catalog.ErrUnexpectedRecordKind, want: "unexpected-record-kind"},
		{err: os.ErrPermission, want: "io-error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err), "Reason(%v)", tt.err)
	}
}
