// Command mcp-server runs the MCP runtime over stdio or streamable HTTP,
// serving a small fixed set of example tools (say_hello, add) wired
// through this module's server/tool packages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/techne-go/techne/pkg/config"
	"github.com/techne-go/techne/pkg/mcp/auth"
	mcpserver "github.com/techne-go/techne/pkg/mcp/server"
	"github.com/techne-go/techne/pkg/mcp/tool"
	"github.com/techne-go/techne/pkg/mcp/transport/httpstream"
	"github.com/techne-go/techne/pkg/mcp/transport/stdio"
)

var (
	flagTransport string
	flagHost      string
	flagPort      int
	flagDebug     bool
	flagTimeout   time.Duration
)

func main() {
	root := &cobra.Command{
		Use:     "mcp-server",
		Short:   "A Model Context Protocol runtime",
		Version: "0.1.0",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio or streamable HTTP",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&flagTransport, "transport", "", "Transport: stdio or http (default from MCP_TRANSPORT, else stdio)")
	serve.Flags().StringVar(&flagHost, "host", "", "HTTP host (default from MCP_HOST, else localhost)")
	serve.Flags().IntVar(&flagPort, "port", 0, "HTTP port (default from MCP_PORT, else 9090)")
	serve.Flags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	serve.Flags().DurationVar(&flagTimeout, "timeout", 0, "Per-request timeout (default from MCP_TIMEOUT, else unbounded; 0 on this flag means unset, not unbounded)")

	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagTransport != "" {
		cfg.Transport = config.Transport(flagTransport)
	}
	if flagHost != "" {
		cfg.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagDebug {
		cfg.Debug = true
	}
	if flagTimeout != 0 {
		cfg.RequestTimeout = flagTimeout
	}

	log := logrus.NewEntry(logrus.StandardLogger())
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	switch cfg.Transport {
	case config.TransportStdio, config.TransportHTTP:
	default:
		return fmt.Errorf("invalid transport: %s", cfg.Transport)
	}

	srv := mcpserver.New(
		mcpserver.Info{Name: "techne-mcp-server", Version: "0.1.0"},
		exampleTools(),
		log,
	)
	srv.RequestTimeout = cfg.RequestTimeout

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("mcp-server: shutdown signal received")
		cancel()
	}()

	switch cfg.Transport {
	case config.TransportStdio:
		log.Info("mcp-server: serving over stdio")
		t := stdio.New(os.Stdin, os.Stdout, log)
		return srv.Run(ctx, t)

	case config.TransportHTTP:
		opts := httpstream.Options{
			Address:  cfg.Address(),
			Sessions: mcpserver.NewSessionRegistry(),
			Log:      log,
		}
		if cfg.AuthSecret != "" {
			opts.Auth = auth.NewBearer(cfg.AuthSecret)
		}
		if cfg.RateLimit > 0 {
			opts.RateLimit = rate.Limit(cfg.RateLimit)
			opts.Burst = cfg.Burst
		}

		t, err := httpstream.Bind(opts)
		if err != nil {
			return fmt.Errorf("mcp-server: binding http transport: %w", err)
		}
		log.WithField("address", t.Addr().String()).Info("mcp-server: serving over streamable http")

		runErr := srv.Run(ctx, t)
		if err := t.Close(context.Background()); err != nil {
			log.WithError(err).Warn("mcp-server: error during http transport shutdown")
		}
		return runErr
	}

	return nil
}

// exampleTools registers a say_hello tool and an add tool, just enough
// for tools/list and tools/call to have something real to exercise.
func exampleTools() []tool.Tool {
	return []tool.Tool{
		tool.New1(
			"say_hello", "Say hello to someone",
			tool.String("name", "The name to say hello to"),
			func(_ context.Context, name string) tool.Outcome {
				return tool.Ok(tool.Text(fmt.Sprintf("Hello, %s!", name)))
			},
		),
		tool.New2(
			"add", "Adds two integers",
			tool.Uint32("a", "The first operand"),
			tool.Uint32("b", "The second operand"),
			func(_ context.Context, a, b uint32) tool.Outcome {
				return tool.FromStructured(a+b, nil)
			},
		),
	}
}
