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
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/blacktop/go-hfs/pkg/catalog"
	"github.com/blacktop/go-hfs/types"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dirColor  = color.New(color.Bold, color.FgHiBlue).SprintFunc()
	fileColor = color.New(color.FgWhite).SprintFunc()
)

func printEntries(entries []*catalog.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		switch {
		case e.IsFolder():
			fmt.Fprintf(w, "%s\t%d\t-\t%s\t%s/\n", e.Folder.Permissions.Mode(), e.Folder.FolderID, e.Folder.ContentModDate, dirColor(e.Name))
		case e.IsFile():
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s%s\n", e.File.Permissions.Mode(), e.File.FileID, humanize.Bytes(e.File.DataFork.LogicalSize), e.File.ContentModDate, fileColor(e.Name), special(e.File))
		}
	}
	w.Flush()
}

// special describes what the BSD special field holds for f, if anything
func special(f *types.CatalogFile) string {
	if inode, ok := f.INodeNum(); ok {
		return fmt.Sprintf(" -> iNode%d", inode)
	}
	if links, ok := f.LinkCount(); ok {
		return fmt.Sprintf(" (%d links)", links)
	}
	if rdev, ok := f.Permissions.RawDevice(); ok {
		return fmt.Sprintf(" (rdev %d, %d)", rdev>>24, rdev&0xFFFFFF)
	}
	return ""
}

// lsCmd represents the ls command
var lsCmd = &cobra.Command{
	Use:           "ls <IMAGE> [PATH]",
	Short:         "List files in an HFS+ volume",
	Args:          cobra.RangeArgs(1, 2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		h, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		if viper.GetBool("ls.all") {
			for _, f := range h.Files() {
				names, err := h.Catalog.Resolve(f.File.FileID)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%d: %v\n", f.File.FileID, err)
					continue
				}
				fmt.Println("/" + strings.Join(names, "/"))
			}
			return nil
		}

		if viper.GetBool("ls.overflow") {
			for _, f := range h.Catalog.Overflow() {
				names, _ := h.Catalog.Resolve(f.File.FileID)
				fmt.Printf("/%s (cnid=%d, %d of %d blocks inline)\n",
					strings.Join(names, "/"), f.File.FileID, f.File.DataFork.InlineBlocks(), f.File.DataFork.TotalBlocks)
			}
			return nil
		}

		path := "/"
		if len(args) > 1 {
			path = args[1]
		}
		entries, err := h.List(path)
		if err != nil {
			return err
		}
		printEntries(entries)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().BoolP("all", "a", false, "Print the full path of every file")
	lsCmd.Flags().Bool("overflow", false, "List files whose extents continue in the Extents Overflow file")
	viper.BindPFlag("ls.all", lsCmd.Flags().Lookup("all"))
	viper.BindPFlag("ls.overflow", lsCmd.Flags().Lookup("overflow"))
}
