package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evelyndooley/flipper/fmr"
)

var packageCmd = &cobra.Command{
	Use:     "package <manifest.toml> <out>",
	Aliases: []string{"pkg"},
	Short:   "Compile a TOML module manifest into a descriptor",
	Long: `Compile a TOML module manifest into a binary FMR descriptor.

Example manifest:

  [[module]]
  name = "led"

  [[module.function]]
  name = "rgb"
  args = ["u8", "u8", "u8"]

  [[module.function]]
  name = "configure"
  return = "i32"`,
	Args: cobra.ExactArgs(2),
	RunE: runPackage,
}

func init() {
	rootCmd.AddCommand(packageCmd)
}

func runPackage(cmd *cobra.Command, args []string) error {
	in, out := args[0], args[1]

	f, err := os.Open(in)
	if err != nil {
		return &FileError{Name: in, Err: err}
	}
	defer f.Close()

	modules, err := fmr.LoadManifest(f)
	if err != nil {
		return &FileError{Name: in, Err: err}
	}
	data, err := fmr.Encode(modules)
	if err != nil {
		return &FileError{Name: in, Err: err}
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return &FileError{Name: out, Err: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d modules, %d bytes\n", out, len(modules), len(data))
	return nil
}
