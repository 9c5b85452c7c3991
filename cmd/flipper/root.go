package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evelyndooley/flipper/attach"
	"github.com/evelyndooley/flipper/codec"
	"github.com/evelyndooley/flipper/config"
	"github.com/evelyndooley/flipper/internal/logging"
	"github.com/evelyndooley/flipper/loadbalance"
	"github.com/evelyndooley/flipper/registry"
	"github.com/evelyndooley/flipper/session"
	"github.com/evelyndooley/flipper/transport"
)

// Version is set via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "flipper",
	Short: "Talk to Flipper devices and generate module bindings",
	Long: `flipper - invoke functions on Flipper device modules.

Module descriptors (FMR) describe the functions a module exports. flipper
compiles them from TOML manifests, inspects them and generates C or Go
bindings from them. It also calls module functions on an attached device
and runs a virtual device for development.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		c.Log.Level = "debug"
	}
	l, err := logging.New(c.Log)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// sessionOptions turns the session section into session options.
func sessionOptions() []session.Option {
	ct, _ := codec.ParseCodecType(cfg.Session.Codec)
	return []session.Option{
		session.WithCodec(ct),
		session.WithMaxArgsSize(cfg.Session.MaxArgsSize),
		session.WithLogger(logger),
	}
}

// openRegistry connects to etcd when endpoints are configured. It returns a
// nil registry otherwise.
func openRegistry() (registry.Registry, func(), error) {
	if len(cfg.Registry.Endpoints) == 0 {
		return nil, func() {}, nil
	}
	reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints,
		registry.WithPrefix(cfg.Registry.Prefix),
		registry.WithLogger(logger),
		registry.WithDialTimeout(cfg.Device.DialTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("registry: %w", err)
	}
	return reg, func() { reg.Close() }, nil
}

func newAttacher() (*attach.Attacher, func(), error) {
	reg, closeReg, err := openRegistry()
	if err != nil {
		return nil, nil, err
	}
	bal, err := loadbalance.New(cfg.Device.Balancer)
	if err != nil {
		closeReg()
		return nil, nil, err
	}
	return &attach.Attacher{
		Dialer: transport.Dialer{
			Timeout:    cfg.Device.DialTimeout,
			Retries:    cfg.Device.Retries,
			RetryDelay: cfg.Device.RetryDelay,
			Logger:     logger,
		},
		Registry:       reg,
		Balancer:       bal,
		DefaultAddress: cfg.Device.Address,
		DefaultPort:    cfg.Device.Port,
		Session:        sessionOptions(),
		Logger:         logger,
	}, closeReg, nil
}
