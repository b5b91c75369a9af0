package catalog

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/blacktop/go-hfs/types"
)

// Resolve follows thread records from cnid up to the root folder and returns the
// names in root-to-leaf order, without the volume name.
// A missing thread ends the chain. A chain longer than Len()+1 links fails with
// ErrPathCycle and returns the names gathered so far.
func (c *Catalog) Resolve(cnid types.CatalogNodeID) ([]string, error) {
	var names []string

	limit := c.Len() + 1
	for i := 0; cnid != types.HFSRootFolderID; i++ {
		if i >= limit {
			slices.Reverse(names)
			return names, fmt.Errorf("%w: CNID chain exceeded %d links", ErrPathCycle, limit)
		}
		rec, ok := c.Get(types.ThreadKey(cnid))
		if !ok {
			break
		}
		if !rec.IsThread() {
			return nil, fmt.Errorf("%w: thread key of CNID %d holds a %s record", ErrUnexpectedRecordKind, cnid, rec.Type)
		}
		names = append(names, rec.Thread.NodeName.String())
		cnid = rec.Thread.ParentID
	}

	slices.Reverse(names)
	return names, nil
}

// Find walks a slash separated path from the root folder
func (c *Catalog) Find(path string) (*Entry, error) {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == filepath.Separator || r == '/'
	})

	if len(parts) == 0 {
		if e, ok := c.ByID(types.HFSRootFolderID); ok {
			return e, nil
		}
		return nil, fmt.Errorf("%w: root folder", ErrNotFound)
	}

	parent := types.HFSRootFolderID
	var e *Entry
	for i, part := range parts {
		var ok bool
		e, ok = c.Lookup(parent, part)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(parts[:i+1], "/"))
		}
		if i < len(parts)-1 {
			if !e.IsFolder() {
				return nil, fmt.Errorf("%s is not a folder", strings.Join(parts[:i+1], "/"))
			}
			parent = e.Folder.FolderID
		}
	}
	return e, nil
}
