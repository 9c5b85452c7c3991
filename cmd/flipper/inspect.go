package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evelyndooley/flipper/fmr"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the modules and functions in a descriptor",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().Bool("json", false, "print JSON instead of text")
	rootCmd.AddCommand(inspectCmd)
}

type moduleView struct {
	Name       string         `json:"name"`
	Identifier uint32         `json:"identifier"`
	Functions  []functionView `json:"functions"`
}

type functionView struct {
	Name   string   `json:"name"`
	Index  uint8    `json:"index"`
	Args   []string `json:"args"`
	Return string   `json:"return"`
}

func view(m fmr.Module) moduleView {
	v := moduleView{Name: m.Name, Identifier: fmr.Identifier(m.Name), Functions: []functionView{}}
	for _, f := range m.Functions {
		fv := functionView{Name: f.Name, Index: f.Index, Args: []string{}, Return: f.Return.String()}
		for _, a := range f.Args {
			fv.Args = append(fv.Args, a.String())
		}
		v.Functions = append(v.Functions, fv)
	}
	return v
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return &FileError{Name: args[0], Err: err}
	}
	modules, err := fmr.Parse(data)
	if err != nil {
		return &FileError{Name: args[0], Err: err}
	}

	views := make([]moduleView, 0, len(modules))
	for _, m := range modules {
		views = append(views, view(m))
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	printModules(out, views)
	return nil
}

func printModules(w io.Writer, views []moduleView) {
	for _, m := range views {
		fmt.Fprintf(w, "%s (0x%08x)\n", m.Name, m.Identifier)
		for _, f := range m.Functions {
			fmt.Fprintf(w, "  [%d] %s(%s) %s\n", f.Index, f.Name, strings.Join(f.Args, ", "), f.Return)
		}
	}
}
