package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/blacktop/go-hfs/pkg/catalog"
	"github.com/blacktop/go-hfs/pkg/fork"
	"github.com/blacktop/go-hfs/types"
	"github.com/blacktop/go-plist"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

type Status string

const (
	Extracted Status = "extracted"
	Skipped   Status = "skipped"
	Failed    Status = "failed"
)

// Outcome is the result for one fork of one file
type Outcome struct {
	CNID   types.CatalogNodeID `json:"cnid" plist:"cnid"`
	Path   string              `json:"path" plist:"path"`
	Fork   string              `json:"fork" plist:"fork"`
	Output string              `json:"output,omitempty" plist:"output,omitempty"`
	Bytes  int64               `json:"bytes" plist:"bytes"`
	Digest string              `json:"digest,omitempty" plist:"digest,omitempty"`
	Status Status              `json:"status" plist:"status"`
	Reason string              `json:"reason,omitempty" plist:"reason,omitempty"`
	Error  string              `json:"error,omitempty" plist:"error,omitempty"`

	Err error `json:"-" plist:"-"`
}

// OverflowFile is a file with a fork that continues in the Extents Overflow file
type OverflowFile struct {
	CNID         types.CatalogNodeID `json:"cnid" plist:"cnid"`
	Path         string              `json:"path" plist:"path"`
	Fork         string              `json:"fork" plist:"fork"`
	TotalBlocks  uint32              `json:"total_blocks" plist:"total_blocks"`
	InlineBlocks uint64              `json:"inline_blocks" plist:"inline_blocks"`
}

// Report is the result of a whole run; it is produced even when the run fails early
type Report struct {
	RunID        string         `json:"run_id" plist:"run_id"`
	Image        string         `json:"image" plist:"image"`
	Output       string         `json:"output,omitempty" plist:"output,omitempty"`
	Digest       string         `json:"digest,omitempty" plist:"digest,omitempty"`
	Started      time.Time      `json:"started" plist:"started"`
	Duration     time.Duration  `json:"duration" plist:"duration"`
	Outcomes     []Outcome      `json:"outcomes" plist:"outcomes"`
	Overflow     []OverflowFile `json:"overflow,omitempty" plist:"overflow,omitempty"`
	NodeErrors   []string       `json:"node_errors,omitempty" plist:"node_errors,omitempty"`
	RecordErrors []string       `json:"record_errors,omitempty" plist:"record_errors,omitempty"`
	Fatal        string         `json:"fatal,omitempty" plist:"fatal,omitempty"`
}

type Summary struct {
	Extracted int    `json:"extracted"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Bytes     uint64 `json:"bytes"`
}

func (s Summary) String() string {
	return fmt.Sprintf("extracted=%d, skipped=%d, failed=%d, bytes=%s",
		s.Extracted, s.Skipped, s.Failed, humanize.Bytes(s.Bytes))
}

func (r *Report) Summary() Summary {
	var s Summary
	for _, o := range r.Outcomes {
		switch o.Status {
		case Extracted:
			s.Extracted++
			s.Bytes += uint64(o.Bytes)
		case Skipped:
			s.Skipped++
		case Failed:
			s.Failed++
		}
	}
	return s
}

// Find returns the outcomes for a slash separated path
func (r *Report) Find(path string) []Outcome {
	var outs []Outcome
	for _, o := range r.Outcomes {
		if o.Path == path {
			outs = append(outs, o)
		}
	}
	return outs
}

func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r *Report) WritePlist(w io.Writer) error {
	enc := plist.NewEncoderForFormat(w, plist.XMLFormat)
	enc.Indent("\t")
	return enc.Encode(r)
}

var (
	okColor     = color.New(color.FgGreen).SprintFunc()
	skipColor   = color.New(color.FgYellow).SprintFunc()
	failColor   = color.New(color.FgRed, color.Bold).SprintFunc()
	faintColor  = color.New(color.Faint, color.FgWhite).SprintFunc()
	headerColor = color.New(color.Bold).SprintFunc()
)

func colorStatus(s Status) string {
	switch s {
	case Extracted:
		return okColor(s)
	case Skipped:
		return skipColor(s)
	default:
		return failColor(s)
	}
}

// WriteTable renders a human readable report
func (r *Report) WriteTable(w io.Writer) error {
	if r.Fatal != "" {
		fmt.Fprintf(w, "%s %s\n", failColor("fatal:"), r.Fatal)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", headerColor("STATUS"), headerColor("CNID"), headerColor("SIZE"), headerColor("PATH"), headerColor("DETAIL"))
	for _, o := range r.Outcomes {
		detail := o.Reason
		if o.Status == Extracted {
			detail = faintColor(o.Digest)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", colorStatus(o.Status), o.CNID, humanize.Bytes(uint64(o.Bytes)), o.Path, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, o := range r.Overflow {
		fmt.Fprintf(w, "%s %s (cnid=%d, fork=%s, %d of %d blocks inline)\n", skipColor("overflow:"), o.Path, o.CNID, o.Fork, o.InlineBlocks, o.TotalBlocks)
	}
	for _, e := range r.NodeErrors {
		fmt.Fprintf(w, "%s %s\n", failColor("node error:"), e)
	}
	for _, e := range r.RecordErrors {
		fmt.Fprintf(w, "%s %s\n", failColor("record error:"), e)
	}

	_, err := fmt.Fprintf(w, "\n%s (%s, run %s)\n", r.Summary(), r.Duration.Round(time.Millisecond), r.RunID)
	return err
}

// Reason maps an extraction error onto a short stable reason
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExcluded):
		return "excluded"
	case errors.Is(err, ErrOutputCollision):
		return "output-collision"
	case errors.Is(err, ErrOverflowExtents):
		return "overflow-extents"
	case errors.Is(err, fork.ErrExtentOutOfBounds):
		return "extent-out-of-bounds"
	case errors.Is(err, fork.ErrIncompleteCopy):
		return "incomplete-copy"
	case errors.Is(err, catalog.ErrPathCycle):
		return "path-cycle"
	case errors.Is(err, catalog.ErrUnexpectedRecordKind):
		return "unexpected-record-kind"
	default:
		return "io-error"
	}
}

func skip(id types.CatalogNodeID, path, kind string, err error) Outcome {
	return outcome(id, path, kind, Skipped, err)
}

func fail(id types.CatalogNodeID, path, kind string, err error) Outcome {
	return outcome(id, path, kind, Failed, err)
}

func outcome(id types.CatalogNodeID, path, kind string, status Status, err error) Outcome {
	return Outcome{
		CNID:   id,
		Path:   path,
		Fork:   kind,
		Status: status,
		Reason: Reason(err),
		Error:  err.Error(),
		Err:    err,
	}
}
