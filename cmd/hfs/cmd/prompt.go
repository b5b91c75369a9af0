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
	"path"
	"strings"

	hfs "github.com/blacktop/go-hfs"
	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
)

type promptContext struct {
	pwd string
	h   *hfs.HFS
}

var pctx *promptContext

func completer(d prompt.Document) []prompt.Suggest {
	args := strings.Fields(d.TextBeforeCursor())
	if len(args) > 1 || (len(args) == 1 && strings.HasSuffix(d.TextBeforeCursor(), " ")) {
		return pathSuggestions(d.GetWordBeforeCursor())
	}
	s := []prompt.Suggest{
		{Text: "cat", Description: "cat(1) file"},
		{Text: "cd", Description: "Change directory"},
		{Text: "cp", Description: "Copy file"},
		{Text: "exit", Description: "Quit prompt"},
		{Text: "ls", Description: "List files"},
		{Text: "pwd", Description: "Print working directory name"},
	}
	return prompt.FilterHasPrefix(s, d.TextBeforeCursor(), true)
}

func pathSuggestions(word string) []prompt.Suggest {
	entries, err := pctx.h.List(pctx.pwd)
	if err != nil {
		return nil
	}
	var s []prompt.Suggest
	for _, e := range entries {
		desc := "file"
		if e.IsFolder() {
			desc = "folder"
		}
		s = append(s, prompt.Suggest{Text: e.Name, Description: desc})
	}
	return prompt.FilterHasPrefix(s, word, false)
}

func resolve(arg string) string {
	if strings.HasPrefix(arg, "/") {
		return path.Clean(arg)
	}
	return path.Join(pctx.pwd, arg)
}

func Executor(s string) {
	s = strings.TrimSpace(s)

	if s == "" || s == "exit" {
		return
	}

	args := strings.Fields(s)

	switch args[0] {
	case "cd":
		if len(args) == 1 {
			pctx.pwd = "/"
			return
		}
		dir := resolve(args[1])
		e, err := pctx.h.Catalog.Find(dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err.Error())
			return
		}
		if !e.IsFolder() {
			fmt.Fprintln(os.Stderr, "Error: not a folder:", dir)
			return
		}
		pctx.pwd = dir
	case "pwd":
		fmt.Println(pctx.pwd)
	case "ls":
		dir := pctx.pwd
		if len(args) > 1 {
			dir = resolve(args[1])
		}
		entries, err := pctx.h.List(dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err.Error())
			return
		}
		printEntries(entries)
	case "cat":
		for _, arg := range args[1:] {
			if err := pctx.h.Cat(resolve(arg), os.Stdout); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err.Error())
				return
			}
		}
	case "cp":
		if len(args) < 2 {
			return
		}
		dest := ""
		if len(args) >= 3 {
			dest = args[2]
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err.Error())
				return
			}
			dest = cwd
		}
		if err := pctx.h.Copy(resolve(args[1]), dest); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err.Error())
			return
		}
	default:
		fmt.Fprintln(os.Stderr, "command not found: "+args[0])
	}
}

func PromptPrefix() (string, bool) {
	return pctx.pwd + " > ", true
}

// ExitChecker stops the prompt loop after "exit" so deferred cleanup still runs
func ExitChecker(in string, breakline bool) bool {
	return breakline && strings.TrimSpace(in) == "exit"
}

// promptCmd represents the prompt command
var promptCmd = &cobra.Command{
	Use:           "prompt <IMAGE>",
	Short:         "Prompt to interactively browse an HFS+ volume",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		h, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		pctx = &promptContext{
			pwd: "/",
			h:   h,
		}

		p := prompt.New(Executor, completer,
			prompt.OptionLivePrefix(PromptPrefix),
			prompt.OptionSetExitCheckerOnInput(ExitChecker),
		)

		p.Run()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
}
