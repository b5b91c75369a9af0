package catalog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blacktop/go-hfs/types"
)

var (
	// ErrUnknownRecordType is returned for a leaf record with an unrecognised type tag
	ErrUnknownRecordType = errors.New("unknown catalog record type")
	// ErrTruncatedRecord is returned when a record is shorter than its type requires
	ErrTruncatedRecord = errors.New("truncated catalog record")
	// ErrUnexpectedRecordKind is returned when a thread key maps to a non-thread record
	ErrUnexpectedRecordKind = errors.New("unexpected catalog record kind")
	// ErrPathCycle is returned when a thread chain does not reach the root
	ErrPathCycle = errors.New("path cycle detected")
	// ErrNotFound is returned when a path or CNID is not in the catalog
	ErrNotFound = errors.New("not found")
)

// Record is one decoded catalog leaf record; exactly one of Folder, File or Thread is set
type Record struct {
	Type   types.RecordType
	Folder *types.CatalogFolder
	File   *types.CatalogFile
	Thread *types.CatalogThread
}

func (r *Record) IsFolder() bool { return r.Type == types.HFSPlusFolderRecord }
func (r *Record) IsFile() bool   { return r.Type == types.HFSPlusFileRecord }
func (r *Record) IsThread() bool { return r.Type.IsThread() }

// ID returns the CNID a folder or file record describes (0 for threads)
func (r *Record) ID() types.CatalogNodeID {
	switch {
	case r.Folder != nil:
		return r.Folder.FolderID
	case r.File != nil:
		return r.File.FileID
	}
	return 0
}

func (r *Record) String() string {
	switch {
	case r.Folder != nil:
		return fmt.Sprintf("type=%s, folderID=%d, valence=%d, created=%s", r.Type, r.Folder.FolderID, r.Folder.Valence, r.Folder.CreateDate)
	case r.File != nil:
		return fmt.Sprintf("type=%s, %s", r.Type, r.File)
	case r.Thread != nil:
		return r.Thread.String()
	}
	return r.Type.String()
}

type decoder func(payload []byte) (*Record, error)

var decoders = map[types.RecordType]decoder{
	types.HFSPlusFolderRecord:       decodeFolder,
	types.HFSPlusFileRecord:         decodeFile,
	types.HFSPlusFolderThreadRecord: decodeThread,
	types.HFSPlusFileThreadRecord:   decodeThread,
}

func decodeFolder(payload []byte) (*Record, error) {
	if len(payload) < types.CatalogFolderSize {
		return nil, fmt.Errorf("%w: folder record is %d bytes, need %d", ErrTruncatedRecord, len(payload), types.CatalogFolderSize)
	}
	var folder types.CatalogFolder
	if err := binary.Read(bytes.NewReader(payload), binary.BigEndian, &folder); err != nil {
		return nil, fmt.Errorf("failed to read folder record: %v", err)
	}
	return &Record{Type: folder.RecordType, Folder: &folder}, nil
}

func decodeFile(payload []byte) (*Record, error) {
	if len(payload) < types.CatalogFileSize {
		return nil, fmt.Errorf("%w: file record is %d bytes, need %d", ErrTruncatedRecord, len(payload), types.CatalogFileSize)
	}
	var file types.CatalogFile
	if err := binary.Read(bytes.NewReader(payload), binary.BigEndian, &file); err != nil {
		return nil, fmt.Errorf("failed to read file record: %v", err)
	}
	return &Record{Type: file.RecordType, File: &file}, nil
}

func decodeThread(payload []byte) (*Record, error) {
	th, err := types.DecodeCatalogThread(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedRecord, err)
	}
	return &Record{Type: th.RecordType, Thread: th}, nil
}

// DecodeRecord splits a leaf record into its key bytes and decoded payload.
// Layout: u16 key length, key, a pad byte when the key length is odd, then the typed payload.
func DecodeRecord(raw []byte) ([]byte, *Record, error) {
	if len(raw) < 2 {
		return nil, nil, fmt.Errorf("%w: missing key length", ErrTruncatedRecord)
	}
	keyLen := int(binary.BigEndian.Uint16(raw))
	pos := 2 + keyLen
	if pos > len(raw) {
		return nil, nil, fmt.Errorf("%w: key length %d exceeds record size %d", ErrTruncatedRecord, keyLen, len(raw))
	}
	key := raw[2:pos]
	if keyLen%2 == 1 {
		pos++
	}
	if pos+2 > len(raw) {
		return key, nil, fmt.Errorf("%w: missing record type", ErrTruncatedRecord)
	}

	payload := raw[pos:]
	typ := types.RecordType(int16(binary.BigEndian.Uint16(payload)))
	decode, ok := decoders[typ]
	if !ok {
		return key, nil, fmt.Errorf("%w: %d", ErrUnknownRecordType, typ)
	}
	rec, err := decode(payload)
	if err != nil {
		return key, nil, err
	}
	return key, rec, nil
}
