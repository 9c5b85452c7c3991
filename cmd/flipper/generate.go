package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evelyndooley/flipper/bindings"
	"github.com/evelyndooley/flipper/fmr"
)

var generateCmd = &cobra.Command{
	Use:     "generate <directory> <file>",
	Aliases: []string{"gen"},
	Short:   "Generate language bindings for a module descriptor",
	Long: `Generate bindings for every module in a descriptor file.

The output directory is created if needed. Each module is written to its
own file, named after the module.`,
	Args: cobra.ExactArgs(2),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringP("lang", "l", "c", "target language: "+strings.Join(bindings.Languages(), ", "))
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	dir, file := args[0], args[1]
	lang, _ := cmd.Flags().GetString("lang")

	backend, err := bindings.Lookup(lang)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return &FileError{Name: file, Err: err}
	}
	modules, err := fmr.Parse(data)
	if err != nil {
		return &FileError{Name: file, Err: err}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FileError{Name: dir, Err: err}
	}

	for _, m := range modules {
		path := filepath.Join(dir, bindings.FileName(m.Name, lang))
		if err := writeBinding(path, &m, backend); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}

func writeBinding(path string, m *fmr.Module, backend bindings.Backend) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &FileError{Name: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &FileError{Name: path, Err: cerr}
		}
	}()

	w := bufio.NewWriter(f)
	if err := bindings.Generate(m, backend, w); err != nil {
		return &FileError{Name: path, Err: err}
	}
	if err := w.Flush(); err != nil {
		return &FileError{Name: path, Err: err}
	}
	return nil
}
