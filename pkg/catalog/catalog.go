package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/go-hfs/pkg/btree"
	"github.com/blacktop/go-hfs/types"
	"golang.org/x/text/unicode/norm"
)

// Entry is an indexed record together with its key
type Entry struct {
	Key    []byte
	Parent types.CatalogNodeID
	Name   string
	*Record
}

func (e *Entry) String() string {
	return fmt.Sprintf("'%s' parent=%d, %s", e.Name, e.Parent, e.Record)
}

// RecordError is a leaf record that could not be decoded
type RecordError struct {
	Node  uint32
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("node %d record %d: %v", e.Node, e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Catalog indexes every catalog leaf record by its raw key; it is read-only once built
type Catalog struct {
	// CaseSensitive selects exact name matching (HFSX with binary compare)
	CaseSensitive bool

	NodeErrors   []error
	RecordErrors []error
	Collisions   int

	entries  map[string]*Entry
	keys     []string
	children map[types.CatalogNodeID][]*Entry
}

// Build walks every leaf of the catalog B-tree; on a duplicate key the last record wins
func Build(tree *btree.Tree) *Catalog {
	c := &Catalog{
		entries:  make(map[string]*Entry),
		children: make(map[types.CatalogNodeID][]*Entry),
	}

	c.NodeErrors = tree.WalkLeaves(func(n uint32, node *btree.Node) {
		for i, raw := range node.Records {
			key, rec, err := DecodeRecord(raw)
			if err != nil {
				log.WithError(err).Debugf("skipping catalog record %d in node %d", i, n)
				c.RecordErrors = append(c.RecordErrors, &RecordError{Node: n, Index: i, Err: err})
				continue
			}
			c.insert(key, rec)
		}
	})

	c.keys = make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		c.keys = append(c.keys, k)
		if !e.IsThread() {
			c.children[e.Parent] = append(c.children[e.Parent], e)
		}
	}
	sort.Strings(c.keys)
	for _, kids := range c.children {
		sort.Slice(kids, func(i, j int) bool {
			return kids[i].Name < kids[j].Name
		})
	}

	log.WithFields(log.Fields{
		"records":     len(c.entries),
		"node_errors": len(c.NodeErrors),
		"rec_errors":  len(c.RecordErrors),
		"collisions":  c.Collisions,
	}).Debug("Catalog Index")

	return c
}

func (c *Catalog) insert(key []byte, rec *Record) {
	e := &Entry{
		Key:    append([]byte(nil), key...),
		Record: rec,
	}
	if ck, err := types.DecodeCatalogKey(key); err == nil {
		e.Parent = ck.ParentID
		e.Name = ck.Name()
	} else {
		log.WithError(err).Debugf("failed to decode catalog key %x", key)
	}
	k := string(e.Key)
	if _, dup := c.entries[k]; dup {
		c.Collisions++
		log.Warnf("duplicate catalog key %x (parent=%d, name=%q), keeping the last record", key, e.Parent, e.Name)
	}
	c.entries[k] = e
}

// Len returns the number of indexed records
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Get looks up a record by raw key bytes (without the key length prefix)
func (c *Catalog) Get(key []byte) (*Record, bool) {
	e, ok := c.entries[string(key)]
	if !ok {
		return nil, false
	}
	return e.Record, true
}

// Entry looks up an entry by raw key bytes
func (c *Catalog) Entry(key []byte) (*Entry, bool) {
	e, ok := c.entries[string(key)]
	return e, ok
}

// Keys returns every raw key in byte order
func (c *Catalog) Keys() [][]byte {
	keys := make([][]byte, len(c.keys))
	for i, k := range c.keys {
		keys[i] = []byte(k)
	}
	return keys
}

// Entries returns every entry in key order
func (c *Catalog) Entries() []*Entry {
	entries := make([]*Entry, len(c.keys))
	for i, k := range c.keys {
		entries[i] = c.entries[k]
	}
	return entries
}

// Files returns every File record in key order
func (c *Catalog) Files() []*Entry {
	var files []*Entry
	for _, k := range c.keys {
		if e := c.entries[k]; e.IsFile() {
			files = append(files, e)
		}
	}
	return files
}

// Children returns the folders and files whose key parent is parent, sorted by name
func (c *Catalog) Children(parent types.CatalogNodeID) []*Entry {
	return c.children[parent]
}

// Lookup finds a child of parent by name: exact key first, then NFD normalised
// (and case folded unless the catalog is case sensitive)
func (c *Catalog) Lookup(parent types.CatalogNodeID, name string) (*Entry, bool) {
	if e, ok := c.entries[string(types.NewCatalogKey(parent, name))]; ok {
		return e, true
	}
	want := norm.NFD.String(name)
	for _, e := range c.children[parent] {
		got := norm.NFD.String(e.Name)
		if got == want || (!c.CaseSensitive && strings.EqualFold(got, want)) {
			return e, true
		}
	}
	return nil, false
}

// ByID finds the folder or file record for cnid through its thread record
func (c *Catalog) ByID(cnid types.CatalogNodeID) (*Entry, bool) {
	rec, ok := c.Get(types.ThreadKey(cnid))
	if !ok || !rec.IsThread() {
		return nil, false
	}
	return c.Entry(types.NewCatalogKey(rec.Thread.ParentID, rec.Thread.NodeName.String()))
}

// Overflow returns the File records with a fork that needs the Extents Overflow file
func (c *Catalog) Overflow() []*Entry {
	var files []*Entry
	for _, e := range c.Files() {
		if e.File.DataFork.NeedsOverflow() || e.File.ResourceFork.NeedsOverflow() {
			files = append(files, e)
		}
	}
	return files
}
