package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evelyndooley/flipper/fvm"
	"github.com/evelyndooley/flipper/middleware"
	"github.com/evelyndooley/flipper/modules/led"
	"github.com/evelyndooley/flipper/modules/uart0"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a virtual device",
	Long: `Run a virtual device hosting the built-in led and uart0 modules.

The uart0 module is a loopback: bytes written come back on read. With
registry endpoints configured, the device registers its name and each
module name under the advertise address until it shuts down.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default from config)")
	serveCmd.Flags().String("advertise", "", "address registered for discovery (default: listen address)")
	serveCmd.Flags().String("name", "", "device name (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newVirtualDevice builds the device served by "serve" and used by
// "invoke --virtual".
func newVirtualDevice(name string) *fvm.Device {
	d := fvm.New(name, fvm.WithLogger(logger), fvm.WithTTL(cfg.Registry.TTL))
	// Names are distinct, so Register cannot fail.
	d.Register(led.Virtual(&led.State{}))
	d.Register(uart0.Virtual(&uart0.Loopback{}))

	d.Use(middleware.Logging(logger))
	if cfg.Serve.Retries > 0 {
		d.Use(middleware.Retry(cfg.Serve.Retries, cfg.Serve.RetryDelay))
	}
	if cfg.Serve.Rate > 0 {
		d.Use(middleware.RateLimit(cfg.Serve.Rate, max(cfg.Serve.Burst, 1)))
	}
	if cfg.Serve.Timeout > 0 {
		d.Use(middleware.Timeout(cfg.Serve.Timeout))
	}
	return d
}

func runServe(cmd *cobra.Command, args []string) error {
	listen := flagOr(cmd, "listen", cfg.Serve.Listen)
	advertise := flagOr(cmd, "advertise", cfg.Serve.Advertise)
	name := flagOr(cmd, "name", cfg.Serve.Name)

	reg, closeReg, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeReg()

	d := newVirtualDevice(name)
	errc := make(chan error, 1)
	go func() { errc <- d.Serve("tcp", listen, advertise, reg) }()

	select {
	case err := <-errc:
		return err
	case <-cmd.Context().Done():
	}

	logger.Info("shutting down", zap.String("device", name))
	if err := d.Shutdown(cfg.Serve.Timeout); err != nil {
		return err
	}
	return <-errc
}

func flagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}
