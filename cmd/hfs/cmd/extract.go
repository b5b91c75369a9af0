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
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	hfs "github.com/blacktop/go-hfs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:           "extract <IMAGE>",
	Aliases:       []string{"x"},
	Short:         "Extract every file from an HFS+ volume",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		conf, err := loadConfig()
		if err != nil {
			return err
		}
		if conf.Extract.Output == "" {
			conf.Extract.Output, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current working directory: %w", err)
			}
		}

		rep := hfs.Run(filepath.Clean(args[0]), &conf.Disk, &conf.Extract)

		var w io.Writer = os.Stdout
		if out := viper.GetString("extract.report"); out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create report file: %w", err)
			}
			defer f.Close()
			w = f
		}

		switch format := viper.GetString("extract.format"); format {
		case "json":
			err = rep.WriteJSON(w)
		case "plist":
			err = rep.WritePlist(w)
		case "table", "":
			err = rep.WriteTable(w)
		default:
			return fmt.Errorf("unknown report format %q (supported: table, json, plist)", format)
		}
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}

		if rep.Fatal != "" {
			return fmt.Errorf("extraction aborted: %s", rep.Fatal)
		}
		log.Infof("Extracted %s", rep.Summary())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output folder")
	extractCmd.MarkFlagDirname("output")
	extractCmd.Flags().StringSliceP("exclude", "e", nil, "Skip files with a path component equal to this name")
	extractCmd.Flags().Bool("no-default-excludes", false, "Do NOT skip HFS+ metadata folders (.journal, .Spotlight-V100, ...)")
	extractCmd.Flags().StringSliceP("prefix", "p", nil, "Only extract files below this path")
	extractCmd.Flags().StringP("digest", "d", "", "Content digest (sha256, sha1, md5, sha512, blake2b)")
	extractCmd.Flags().IntP("workers", "j", 0, "Number of files extracted concurrently")
	extractCmd.Flags().BoolP("rsrc", "r", false, "Also extract resource forks as <name>.rsrc")
	extractCmd.Flags().BoolP("times", "t", false, "Preserve modification times")
	extractCmd.Flags().Bool("progress", false, "Show a progress bar")
	extractCmd.Flags().StringP("format", "f", "table", "Report format (table, json, plist)")
	extractCmd.Flags().String("report", "", "Write the report to a file")
	viper.BindPFlag("extract.output", extractCmd.Flags().Lookup("output"))
	viper.BindPFlag("extract.exclude", extractCmd.Flags().Lookup("exclude"))
	viper.BindPFlag("extract.no-default-excludes", extractCmd.Flags().Lookup("no-default-excludes"))
	viper.BindPFlag("extract.prefix", extractCmd.Flags().Lookup("prefix"))
	viper.BindPFlag("extract.digest", extractCmd.Flags().Lookup("digest"))
	viper.BindPFlag("extract.workers", extractCmd.Flags().Lookup("workers"))
	viper.BindPFlag("extract.resource-forks", extractCmd.Flags().Lookup("rsrc"))
	viper.BindPFlag("extract.preserve-times", extractCmd.Flags().Lookup("times"))
	viper.BindPFlag("extract.progress", extractCmd.Flags().Lookup("progress"))
	viper.BindPFlag("extract.format", extractCmd.Flags().Lookup("format"))
	viper.BindPFlag("extract.report", extractCmd.Flags().Lookup("report"))
}
