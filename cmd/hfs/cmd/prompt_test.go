/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"bytes"
	"testing"

	hfs "github.com/blacktop/go-hfs"
	"github.com/blacktop/go-hfs/internal/testimg"
	"github.com/blacktop/go-hfs/pkg/disk"
	"github.com/blacktop/go-hfs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitChecker(t *testing.T) {
	tests := []struct {
		in        string
		breakline bool
		want      bool
	}{
		{in: "exit", breakline: true, want: true},
		{in: "  exit ", breakline: true, want: true},
		{in: "exit", breakline: false},
		{in: "exi", breakline: true},
		{in: "ls /", breakline: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitChecker(tt.in, tt.breakline), "%q breakline=%v", tt.in, tt.breakline)
	}
}

func TestExecutor(t *testing.T) {
	b := testimg.New()
	b.Folder(types.HFSRootFolderID, 16, "Docs")
	b.File(16, 17, "a.txt", []byte("hello"))
	img := b.Bytes()

	h, err := hfs.NewHFS(disk.NewGeneric(bytes.NewReader(img), int64(len(img))))
	require.NoError(t, err)
	pctx = &promptContext{pwd: "/", h: h}

	// exit returns to the prompt loop instead of terminating the process
	Executor("exit")
	assert.Equal(t, "/", pctx.pwd)

	Executor("cd Docs")
	assert.Equal(t, "/Docs", pctx.pwd)
	Executor("cd a.txt")
	assert.Equal(t, "/Docs", pctx.pwd)
	Executor("cd")
	assert.Equal(t, "/", pctx.pwd)

	prefix, ok := PromptPrefix()
	assert.True(t, ok)
	assert.Equal(t, "/ > ", prefix)
}

func TestSpecial(t *testing.T) {
	link := &types.CatalogFile{
		Permissions: types.BSDInfo{FileMode: types.S_IFREG | 0o644, Special: 12},
		UserInfo:    types.FileInfo{FileType: types.HardLinkFileType, FileCreator: types.HFSPlusCreator},
	}
	assert.Equal(t, " -> iNode12", special(link))

	node := &types.CatalogFile{
		Permissions: types.BSDInfo{FileMode: types.S_IFREG | 0o644, Special: 3},
		UserInfo:    types.FileInfo{FileType: types.IndirectNodeFileType, FileCreator: types.HFSPlusCreator},
	}
	assert.Equal(t, " (3 links)", special(node))

	dev := &types.CatalogFile{Permissions: types.BSDInfo{FileMode: types.S_IFCHR | 0o600, Special: 0x0E000001}}
	assert.Equal(t, " (rdev 14, 1)", special(dev))

	assert.Empty(t, special(&types.CatalogFile{Permissions: types.BSDInfo{FileMode: types.S_IFREG | 0o644, Special: 9}}))
}
