package extract

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/go-hfs/pkg/catalog"
	"github.com/blacktop/go-hfs/pkg/fork"
	"github.com/blacktop/go-hfs/types"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

var (
	// ErrOutputCollision is returned when the destination file already exists
	ErrOutputCollision = errors.New("output already exists")
	// ErrOverflowExtents is returned for forks that need the Extents Overflow file and no resolver is set
	ErrOverflowExtents = errors.New("fork needs extents overflow records")
	// ErrExcluded marks files matched by the exclusion policy
	ErrExcluded = errors.New("excluded")
)

// OverflowResolver looks up the extents that follow startBlock in the Extents Overflow file
type OverflowResolver interface {
	Extents(fileID types.CatalogNodeID, forkType uint8, startBlock uint32) ([]types.ExtentDescriptor, error)
}

// Extractor copies every file of a catalog into an output directory
type Extractor struct {
	// Overflow resolves forks with more than eight extents (nil skips them)
	Overflow OverflowResolver
	// Image is recorded in the report
	Image string

	cat     *catalog.Catalog
	rdr     *fork.Reader
	conf    Config
	newHash func() hash.Hash
	exclude map[string]bool
	prefix  [][]string
}

func New(cat *catalog.Catalog, rdr *fork.Reader, conf *Config) (*Extractor, error) {
	if conf == nil {
		conf = &Config{}
	}
	e := &Extractor{
		cat:  cat,
		rdr:  rdr,
		conf: *conf,
	}
	e.conf.setDefaults()

	var err error
	e.newHash, err = NewHash(e.conf.Digest)
	if err != nil {
		return nil, err
	}
	e.exclude = e.conf.excludes()
	e.prefix = e.conf.prefixes()

	return e, nil
}

// Run extracts every File record and reports one outcome per fork written or skipped
func (e *Extractor) Run() *Report {
	rep := &Report{
		RunID:   uuid.New().String(),
		Image:   e.Image,
		Digest:  strings.ToLower(e.conf.Digest),
		Output:  e.conf.Output,
		Started: time.Now(),
	}
	for _, err := range e.cat.NodeErrors {
		rep.NodeErrors = append(rep.NodeErrors, err.Error())
	}
	for _, err := range e.cat.RecordErrors {
		rep.RecordErrors = append(rep.RecordErrors, err.Error())
	}
	for _, f := range e.cat.Overflow() {
		names, _ := e.path(f)
		fd, kind := f.File.DataFork, "data"
		if !fd.NeedsOverflow() {
			fd, kind = f.File.ResourceFork, "rsrc"
		}
		rep.Overflow = append(rep.Overflow, OverflowFile{
			CNID:         f.File.FileID,
			Path:         strings.Join(names, "/"),
			Fork:         kind,
			TotalBlocks:  fd.TotalBlocks,
			InlineBlocks: fd.InlineBlocks(),
		})
	}

	files := e.cat.Files()
	results := make([][]Outcome, len(files))

	var bar *mpb.Bar
	var p *mpb.Progress
	if e.conf.Progress {
		p = mpb.New(mpb.WithWidth(80))
		bar = p.Add(int64(len(files)),
			mpb.NewBarFiller(mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("|")),
			mpb.PrependDecorators(
				decor.Name("extract", decor.WC{W: len("extract") + 1, C: decor.DidentRight}),
				decor.OnComplete(
					decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "✅ ",
				),
			),
			mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
		)
	}

	wp := pool.New().WithMaxGoroutines(e.conf.Workers)
	for i, f := range files {
		wp.Go(func() {
			results[i] = e.extractFile(f)
			if bar != nil {
				bar.Increment()
			}
		})
	}
	wp.Wait()
	if p != nil {
		p.Wait()
	}

	for _, outs := range results {
		rep.Outcomes = append(rep.Outcomes, outs...)
	}
	rep.Duration = time.Since(rep.Started)

	log.WithFields(log.Fields{
		"files":    len(files),
		"outcomes": len(rep.Outcomes),
		"duration": rep.Duration,
	}).Debug("Extraction finished")

	return rep
}

// path resolves the file's path; without a thread record it falls back to the
// parent's path plus the key name, and to the CNID when the key has no name
func (e *Extractor) path(f *catalog.Entry) ([]string, error) {
	names, err := e.cat.Resolve(f.File.FileID)
	if err != nil || len(names) > 0 {
		return names, err
	}
	if f.Parent != types.HFSRootFolderID {
		if parent, err := e.cat.Resolve(f.Parent); err == nil {
			names = parent
		}
	}
	name := f.Name
	if name == "" {
		name = strconv.FormatUint(uint64(f.File.FileID), 10)
	}
	return append(names, name), nil
}

// Sanitize turns an HFS+ name into a single safe path component
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, "/", ":")
	name = strings.ReplaceAll(name, "\x00", "")
	switch name {
	case "", ".", "..":
		return "_"
	}
	return name
}

func (e *Extractor) excluded(names []string) bool {
	for _, n := range names {
		if e.exclude[n] {
			return true
		}
	}
	return false
}

func (e *Extractor) selected(names []string) bool {
	if len(e.prefix) == 0 {
		return true
	}
	for _, pre := range e.prefix {
		if len(names) < len(pre) {
			continue
		}
		match := true
		for i := range pre {
			if names[i] != pre[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (e *Extractor) extractFile(f *catalog.Entry) []Outcome {
	id := f.File.FileID
	names, err := e.path(f)
	if err != nil {
		return []Outcome{skip(id, strings.Join(names, "/"), "data", err)}
	}
	display := strings.Join(names, "/")

	if !e.selected(names) {
		return nil
	}
	if e.excluded(names) {
		log.Debugf("excluding %s", display)
		return []Outcome{skip(id, display, "data", ErrExcluded)}
	}

	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = Sanitize(n)
	}
	dst := filepath.Join(append([]string{e.conf.Output}, parts...)...)

	outs := []Outcome{e.extractFork(f, types.DataForkType, f.File.DataFork, display, dst)}
	if e.conf.ResourceForks && f.File.ResourceFork.LogicalSize > 0 {
		outs = append(outs, e.extractFork(f, types.ResourceForkType, f.File.ResourceFork, display+".rsrc", dst+".rsrc"))
	}
	return outs
}

func (e *Extractor) resolveFork(id types.CatalogNodeID, forkType uint8, fd types.ForkData) (fork.Fork, error) {
	if !fd.NeedsOverflow() {
		return fork.FromForkData(fd), nil
	}
	if e.Overflow == nil {
		return fork.Fork{}, fmt.Errorf("%w: %d of %d blocks inline", ErrOverflowExtents, fd.InlineBlocks(), fd.TotalBlocks)
	}
	var extra []types.ExtentDescriptor
	covered := fd.InlineBlocks()
	for covered < uint64(fd.TotalBlocks) {
		exts, err := e.Overflow.Extents(id, forkType, uint32(covered))
		if err != nil {
			return fork.Fork{}, fmt.Errorf("failed to resolve overflow extents: %w", err)
		}
		var n uint64
		for _, ext := range exts {
			n += uint64(ext.BlockCount)
		}
		if n == 0 {
			return fork.Fork{}, fmt.Errorf("%w: no records past block %d", ErrOverflowExtents, covered)
		}
		extra = append(extra, exts...)
		covered += n
	}
	return fork.FromForkData(fd, extra...), nil
}

func (e *Extractor) extractFork(f *catalog.Entry, forkType uint8, fd types.ForkData, display, dst string) Outcome {
	id := f.File.FileID
	kind := "data"
	if forkType == types.ResourceForkType {
		kind = "rsrc"
	}

	fk, err := e.resolveFork(id, forkType, fd)
	if err != nil {
		return skip(id, display, kind, err)
	}
	if err := e.rdr.CheckForkBounds(fk); err != nil {
		return skip(id, display, kind, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fail(id, display, kind, fmt.Errorf("failed to create directory: %w", err))
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return skip(id, display, kind, fmt.Errorf("%w: %s", ErrOutputCollision, dst))
		}
		return fail(id, display, kind, fmt.Errorf("failed to create output: %w", err))
	}

	h := e.newHash()
	w := bufio.NewWriter(out)
	n, err := e.rdr.StreamFork(fk, w, h)
	if err == nil {
		err = w.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(dst); rerr != nil {
			log.WithError(rerr).Warnf("failed to remove partial output %s", dst)
		}
		o := fail(id, display, kind, err)
		o.Bytes = n
		return o
	}

	if e.conf.PreserveTimes {
		if err := os.Chtimes(dst, f.File.AccessDate.Time(), f.File.ContentModDate.Time()); err != nil {
			log.WithError(err).Warnf("failed to set times on %s", dst)
		}
	}

	log.WithFields(log.Fields{
		"cnid": id,
		"path": display,
		"size": n,
	}).Debug("Extracted")

	return Outcome{
		CNID:   id,
		Path:   display,
		Fork:   kind,
		Output: dst,
		Bytes:  n,
		Digest: hex.EncodeToString(h.Sum(nil)),
		Status: Extracted,
	}
}
