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
	"errors"
	"fmt"

	hfs "github.com/blacktop/go-hfs"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	infoTitle = color.New(color.Bold, color.FgHiBlue).SprintFunc()
	infoFaint = color.New(color.Faint, color.FgWhite).SprintfFunc()
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:           "info <IMAGE>",
	Short:         "Display HFS+ volume information",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		h, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		fmt.Println(infoTitle("Volume Header"))
		fmt.Println(h.Volume)
		fmt.Printf("Size:               %s\n", humanize.Bytes(h.Volume.Size()))
		fmt.Printf("Free:               %s\n", humanize.Bytes(uint64(h.Volume.FreeBlocks)*uint64(h.Volume.BlockSize)))

		if used, err := h.AllocationUsage(); err == nil {
			fmt.Printf("Allocated:          %d blocks (%d expected from header)\n", used, h.Volume.TotalBlocks-h.Volume.FreeBlocks)
		} else {
			fmt.Println(infoFaint("allocation bitmap: %v", err))
		}

		fmt.Println()
		fmt.Println(infoTitle("Journal"))
		jib, err := h.JournalInfo()
		switch {
		case errors.Is(err, hfs.ErrNotJournaled):
			fmt.Println(infoFaint("not journaled"))
		case err != nil:
			fmt.Println(infoFaint("failed to read journal info block: %v", err))
		default:
			fmt.Println(jib)
		}

		fmt.Println()
		fmt.Println(infoTitle("Catalog B-Tree"))
		fmt.Println(h.Tree)
		fmt.Printf("indexed records=%d, files=%d, overflow files=%d, node errors=%d, record errors=%d\n",
			h.Catalog.Len(),
			len(h.Catalog.Files()),
			len(h.Catalog.Overflow()),
			len(h.Catalog.NodeErrors),
			len(h.Catalog.RecordErrors),
		)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
