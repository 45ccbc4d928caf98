package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drblury/netshell"
)

const (
	modeEcho = "echo"
	modeHTTP = "http"
)

type serveOptions struct {
	transport string
	address   string
	port      int
	mode      string
	envFile   string
	logFile   string
	debug     bool
	metrics   bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a demo server until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.envFile != "" {
				if err := godotenv.Load(opts.envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			}
			conf, err := netshell.ConfigFromEnv()
			if err != nil {
				return err
			}
			opts.apply(cmd, conf)
			if err := conf.Validate(); err != nil {
				return err
			}

			zapLogger := newLogger(opts.logFile, opts.debug)
			defer func() { _ = zapLogger.Sync() }()
			log := netshell.NewZapServiceLogger(zapLogger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, cleanup, err := buildServer(ctx, opts.mode, conf, log)
			if err != nil {
				return err
			}
			defer cleanup()

			log.Info("Serving", netshell.LogFields{"config": conf.String(), "mode": opts.mode})
			return srv.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.transport, "transport", "tcp", "transport handler (tcp, websocket, http, memory)")
	flags.StringVar(&opts.address, "address", "0.0.0.0", "listen address")
	flags.IntVar(&opts.port, "port", 9501, "listen port")
	flags.StringVar(&opts.mode, "mode", modeEcho, "demo behaviour: echo or http")
	flags.StringVar(&opts.envFile, "env-file", "", "load NETSHELL_* variables from this file first")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to a rotated file instead of stdout")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&opts.metrics, "metrics", false, "expose Prometheus metrics and the admin API")
	return cmd
}

// apply overrides the environment with flags given on the command line.
// Without any environment the flag defaults win.
func (o *serveOptions) apply(cmd *cobra.Command, conf *netshell.Config) {
	flags := cmd.Flags()
	if flags.Changed("transport") || os.Getenv("NETSHELL_TRANSPORT") == "" {
		conf.Transport = o.transport
	}
	if flags.Changed("address") || os.Getenv("NETSHELL_ADDRESS") == "" {
		conf.Address = o.address
	}
	if flags.Changed("port") || os.Getenv("NETSHELL_PORT") == "" {
		conf.Port = o.port
	}
	if flags.Changed("metrics") {
		conf.MetricsEnabled = o.metrics
	}
}

// buildServer assembles the demo server for mode. The returned cleanup closes
// the event bridge when one is configured.
func buildServer(ctx context.Context, mode string, conf *netshell.Config, log netshell.ServiceLogger) (*netshell.Server, func(), error) {
	deps := netshell.ServerDependencies{Logger: log}
	cleanup := func() {}

	var srv *netshell.Server
	switch mode {
	case modeEcho:
		s, err := netshell.NewServer(conf, deps)
		if err != nil {
			return nil, cleanup, err
		}
		s.AddListener(netshell.ReceiveFunc(echo))
		srv = s
	case modeHTTP:
		var requestMetrics *netshell.RequestMetrics
		if conf.MetricsEnabled {
			m, err := netshell.NewRequestMetrics(nil)
			if err != nil {
				return nil, cleanup, err
			}
			requestMetrics = m
		}
		s, err := netshell.NewHTTPServer(conf, deps, netshell.WithMiddlewares(netshell.DefaultMiddlewares(log, requestMetrics)...))
		if err != nil {
			return nil, cleanup, err
		}
		s.AddListener(netshell.RequestFunc(hello))
		srv = s.Server
	default:
		return nil, cleanup, fmt.Errorf("unknown mode %q (supported: %s, %s)", mode, modeEcho, modeHTTP)
	}

	srv.AddListener(netshell.NewLoggingListener(nil))
	if conf.MetricsEnabled {
		metrics, err := netshell.NewMetricsListener(nil)
		if err != nil {
			return nil, cleanup, err
		}
		srv.AddListener(metrics)
	}

	bridge, err := netshell.NewBridgeListenerFromConfig(ctx, conf, log, nil)
	switch {
	case netshell.IsBridgeDisabled(err):
	case err != nil:
		return nil, cleanup, fmt.Errorf("event bridge: %w", err)
	default:
		srv.AddListener(bridge)
		cleanup = func() {
			if err := bridge.Close(); err != nil {
				log.Error("Failed to close event bridge", err, nil)
			}
		}
	}
	return srv, cleanup, nil
}

func echo(_ *netshell.Server, client *netshell.Client, data []byte) error {
	return client.Send(data)
}

func hello(*netshell.Request) (*netshell.Response, error) {
	return netshell.Text("Hello from http server"), nil
}
