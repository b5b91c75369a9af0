package hfs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/go-hfs/pkg/btree"
	"github.com/blacktop/go-hfs/pkg/catalog"
	"github.com/blacktop/go-hfs/pkg/disk"
	"github.com/blacktop/go-hfs/pkg/extract"
	"github.com/blacktop/go-hfs/pkg/fork"
	"github.com/blacktop/go-hfs/types"
	"github.com/google/uuid"
)

// ErrNotJournaled is returned by JournalInfo for volumes without a journal
var ErrNotJournaled = errors.New("volume is not journaled")

// Config groups the device and extraction settings
type Config struct {
	Disk    disk.Config    `mapstructure:"disk"`
	Extract extract.Config `mapstructure:"extract"`
}

// HFS is an opened HFS+ or HFSX volume with its catalog fully indexed
type HFS struct {
	Volume  *types.VolumeHeader
	Catalog *catalog.Catalog
	Tree    *btree.Tree

	name   string
	dev    disk.Device
	fork   *fork.Reader
	closer io.Closer
}

// Open opens the named image (raw, .xz or .bz2) and prepares it for use as an HFS+ volume
func Open(name string, conf *disk.Config) (*HFS, error) {
	dev, err := disk.Open(filepath.Clean(name), conf)
	if err != nil {
		return nil, err
	}
	h, err := NewHFS(dev)
	if err != nil {
		dev.Close()
		return nil, err
	}
	h.name = name
	h.closer = dev
	return h, nil
}

// Close closes the HFS.
// If the HFS was created using NewHFS directly instead of Open,
// Close has no effect.
func (h *HFS) Close() error {
	var err error
	if h.closer != nil {
		err = h.closer.Close()
		h.closer = nil
	}
	return err
}

// NewHFS reads the volume header from dev, materializes the catalog file and indexes every leaf record
func NewHFS(dev disk.Device) (*HFS, error) {
	var err error

	h := &HFS{dev: dev}

	h.Volume, err = types.ReadVolumeHeader(dev)
	if err != nil {
		return nil, fmt.Errorf("failed to read volume header: %w", err)
	}

	log.WithFields(log.Fields{
		"signature":   fmt.Sprintf("%#04x", h.Volume.Signature),
		"version":     h.Volume.Version,
		"block_size":  h.Volume.BlockSize,
		"total":       h.Volume.TotalBlocks,
		"free":        h.Volume.FreeBlocks,
		"files":       h.Volume.FileCount,
		"folders":     h.Volume.FolderCount,
		"attributes":  h.Volume.Attributes,
		"catalog_len": h.Volume.CatalogFile.LogicalSize,
	}).Debug("HFS+ Volume Header")

	h.fork = fork.NewReader(dev, h.Volume.BlockSize)

	if h.Volume.CatalogFile.NeedsOverflow() {
		log.Warnf("catalog file spans %d blocks but only %d are inline, later nodes will be missing",
			h.Volume.CatalogFile.TotalBlocks, h.Volume.CatalogFile.InlineBlocks())
	}

	data, err := h.fork.Materialize(h.Volume.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read catalog file: %w", types.ErrMalformedHeader, err)
	}

	h.Tree, err = btree.Open(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog b-tree: %w", err)
	}

	h.Catalog = catalog.Build(h.Tree)
	h.Catalog.CaseSensitive = h.Volume.IsHFSX() && h.Tree.Header.KeyCompareType == types.HFSBinaryCompare

	return h, nil
}

// Files returns every file record in the catalog
func (h *HFS) Files() []*catalog.Entry {
	return h.Catalog.Files()
}

// List returns the children of the folder at path, or the file itself
func (h *HFS) List(path string) ([]*catalog.Entry, error) {
	e, err := h.Catalog.Find(path)
	if err != nil {
		return nil, err
	}
	if e.IsFolder() {
		return h.Catalog.Children(e.Folder.FolderID), nil
	}
	return []*catalog.Entry{e}, nil
}

// Cat writes the data fork of the file at path to w
func (h *HFS) Cat(path string, w io.Writer) error {
	e, err := h.Catalog.Find(path)
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", path, err)
	}
	if !e.IsFile() {
		return fmt.Errorf("%s is not a file", path)
	}
	if e.File.DataFork.NeedsOverflow() {
		return fmt.Errorf("%s: %w", path, extract.ErrOverflowExtents)
	}
	if err := h.fork.ReadFile(bufio.NewWriter(w), e.File.DataFork); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Copy copies the file or folder at src into the dest directory
func (h *HFS) Copy(src, dest string) error {
	e, err := h.Catalog.Find(src)
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", src, err)
	}
	return h.copyEntry(e, dest)
}

func (h *HFS) copyEntry(e *catalog.Entry, dest string) error {
	dst := dest
	if !e.IsFolder() || e.Folder.FolderID != types.HFSRootFolderID {
		dst = filepath.Join(dest, extract.Sanitize(e.Name))
	}

	if e.IsFolder() {
		if err := os.MkdirAll(dst, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dst, err)
		}
		for _, child := range h.Catalog.Children(e.Folder.FolderID) {
			if err := h.copyEntry(child, dst); err != nil {
				return err
			}
		}
		return nil
	}

	if err := h.fork.CheckBounds(e.File.DataFork); err != nil {
		return fmt.Errorf("failed to copy %s: %w", e.Name, err)
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", extract.ErrOutputCollision, dst)
		}
		return err
	}

	log.Infof("Copying %s to %s", e.Name, dst)
	err = h.fork.ReadFile(bufio.NewWriter(f), e.File.DataFork)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to copy %s: %w", e.Name, err)
	}
	return nil
}

// Extract copies every file of the volume according to conf
func (h *HFS) Extract(conf *extract.Config) (*extract.Report, error) {
	e, err := extract.New(h.Catalog, h.fork, conf)
	if err != nil {
		return nil, err
	}
	e.Image = h.name
	return e.Run(), nil
}

// JournalInfo reads the journal info block of a journaled volume
func (h *HFS) JournalInfo() (*types.JournalInfoBlock, error) {
	if !h.Volume.Journaled() || h.Volume.JournalInfoBlock == 0 {
		return nil, ErrNotJournaled
	}
	off := int64(h.Volume.JournalInfoBlock) * int64(h.Volume.BlockSize)
	return types.ReadJournalInfoBlock(h.dev, off)
}

// AllocationUsage counts the used blocks recorded in the allocation bitmap
func (h *HFS) AllocationUsage() (uint64, error) {
	bitmap, err := h.fork.Materialize(h.Volume.AllocationFile)
	if err != nil {
		return 0, fmt.Errorf("failed to read allocation file: %w", err)
	}
	total := uint64(h.Volume.TotalBlocks)
	if covered := uint64(len(bitmap)) * 8; total > covered {
		log.Warnf("allocation file covers %d blocks, volume has %d", covered, total)
		total = covered
	}
	var used uint64
	full := total / 8
	for _, b := range bitmap[:full] {
		used += uint64(bits.OnesCount8(b))
	}
	if rem := total % 8; rem > 0 {
		used += uint64(bits.OnesCount8(bitmap[full] & ^byte(0xFF>>rem)))
	}
	return used, nil
}

// Run opens an image and extracts it; open and volume header failures land in Report.Fatal
func Run(image string, dconf *disk.Config, econf *extract.Config) *extract.Report {
	start := time.Now()

	h, err := Open(image, dconf)
	if err != nil {
		return fatal(image, start, err)
	}
	defer h.Close()

	rep, err := h.Extract(econf)
	if err != nil {
		return fatal(image, start, err)
	}
	rep.Started = start
	rep.Duration = time.Since(start)
	return rep
}

func fatal(image string, start time.Time, err error) *extract.Report {
	log.WithError(err).Errorf("failed to process %s", image)
	return &extract.Report{
		RunID:    uuid.New().String(),
		Image:    image,
		Started:  start,
		Duration: time.Since(start),
		Fatal:    err.Error(),
	}
}
