package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evelyndooley/flipper/attach"
	"github.com/evelyndooley/flipper/codec"
	"github.com/evelyndooley/flipper/fmr"
	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/session"
)

// exitDeviceError is the exit status when the device answers with an error.
const exitDeviceError = 3

var invokeCmd = &cobra.Command{
	Use:   "invoke <module> <function> [type:value...]",
	Short: "Call a function on a device module",
	Long: `Call a function on a device module and print its return value.

Arguments are typed: u8:7, i16:-3, u32:0x10. Use --push to send bytes to a
bulk function and --pull to read bytes from one.`,
	Example: `  flipper invoke led 0 u8:255 u8:0 u8:0
  flipper invoke --host board.local led 1 --ret i32
  flipper invoke --virtual uart0 2 --push hello`,
	Args: cobra.MinimumNArgs(2),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().String("host", "", "device name or address (default from config)")
	invokeCmd.Flags().Bool("virtual", false, "call an in-process virtual device")
	invokeCmd.Flags().String("ret", "void", "return type")
	invokeCmd.Flags().String("push", "", "bytes to push")
	invokeCmd.Flags().Int("pull", 0, "number of bytes to pull")
	rootCmd.AddCommand(invokeCmd)
}

// parseArgs builds an argument list from type:value pairs.
func parseArgs(args *codec.Args, specs []string) error {
	for _, spec := range specs {
		typ, val, ok := strings.Cut(spec, ":")
		if !ok {
			return fmt.Errorf("argument %q: expected type:value", spec)
		}
		t, err := fmr.ParseType(typ)
		if err != nil {
			return fmt.Errorf("argument %q: %w", spec, err)
		}
		raw, err := codec.ParseValue(t, val)
		if err != nil {
			return fmt.Errorf("argument %q: %w", spec, err)
		}
		args.AppendRaw(t, raw)
	}
	return args.Err()
}

func runInvoke(cmd *cobra.Command, args []string) error {
	module := args[0]
	fn, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return fmt.Errorf("function index %q: %w", args[1], err)
	}
	ret, err := fmr.ParseType(cmd.Flag("ret").Value.String())
	if err != nil {
		return err
	}

	s, done, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer done()

	callArgs := s.NewArgs()
	if err := parseArgs(callArgs, args[2:]); err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	push, _ := cmd.Flags().GetString("push")
	pull, _ := cmd.Flags().GetInt("pull")

	switch {
	case cmd.Flags().Changed("push"):
		err = s.Push(ctx, module, uint8(fn), []byte(push), callArgs)
		if err == nil {
			fmt.Fprintf(out, "pushed %d bytes\n", len(push))
		}
	case pull > 0:
		buf := make([]byte, pull)
		err = s.Pull(ctx, module, uint8(fn), buf, callArgs)
		if err == nil {
			fmt.Fprintln(out, hex.EncodeToString(buf))
		}
	default:
		var v codec.Value
		v, err = s.Invoke(ctx, module, uint8(fn), callArgs)
		if err == nil {
			if ret == fmr.TypeVoid {
				fmt.Fprintln(out, "ok")
			} else {
				fmt.Fprintln(out, v.Format(ret))
			}
		}
	}

	var devErr *message.DeviceError
	if errors.As(err, &devErr) {
		return &ExitError{Code: exitDeviceError, Err: err}
	}
	return err
}

// openSession attaches to the configured device, the --host device, or a
// fresh virtual device.
func openSession(cmd *cobra.Command) (*session.Session, func(), error) {
	if virtual, _ := cmd.Flags().GetBool("virtual"); virtual {
		s := attach.Virtual(newVirtualDevice(cfg.Serve.Name), sessionOptions()...)
		return s, func() { s.Close() }, nil
	}

	a, closeReg, err := newAttacher()
	if err != nil {
		return nil, nil, err
	}
	var s *session.Session
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		s, err = a.AttachHostname(cmd.Context(), host)
	} else {
		s, err = a.Attach(cmd.Context())
	}
	if err != nil {
		closeReg()
		return nil, nil, err
	}
	return s, func() {
		s.Close()
		closeReg()
	}, nil
}
