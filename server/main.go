package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cidrotate/clm"
)

// QUIC echo server with per-connection CID rotation. Each accepted
// connection gets its own lifecycle manager and timer task; the operator
// console can force a rotation on every live connection at once.
func main() {
	var cfgPath string
	var listen string
	var logPath string
	var verbose bool
	flag.StringVar(&cfgPath, "config", "", "config file (yaml); defaults to ./server.yaml when present")
	flag.StringVar(&listen, "listen", "", "listen address override")
	flag.StringVar(&logPath, "rotation-log", "", "rotation log path override")
	flag.BoolVar(&verbose, "verbose", false, "debug logging")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	if logPath != "" {
		cfg.RotationLog = logPath
	}
	if verbose {
		cfg.Verbose = true
	}

	logger := newLogger(cfg.Verbose)
	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().Timestamp().Logger()
}

func run(cfg *Config, logger zerolog.Logger) error {
	eventLog, err := clm.NewEventLog(cfg.RotationLog)
	if err != nil {
		return fmt.Errorf("rotation log: %w", err)
	}
	defer eventLog.Close()

	tlsConf, err := serverTLSConfig(cfg)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	listener, err := quic.ListenAddr(cfg.ListenAddr, tlsConf, &quic.Config{
		MaxIdleTimeout:  cfg.IdleTimeout,
		KeepAlivePeriod: 2 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("quic listen: %w", err)
	}
	defer listener.Close()

	policy := cfg.Rotation.Policy()
	registry := clm.NewRegistry()

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("rotation_log", cfg.RotationLog).
		Dur("interval", policy.Interval).
		Msg("listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// Closing the listener is what actually unblocks Accept.
	g.Go(func() error {
		<-ctx.Done()
		_ = listener.Close()
		return nil
	})

	g.Go(func() error {
		return acceptLoop(ctx, listener, registry, policy, eventLog, cfg, logger)
	})

	// Manual rotations go through a dedicated manager. The forced path
	// never touches any per-connection schedule, so sharing one manager
	// across the whole sweep is safe.
	opManager := clm.NewManager(policy, eventLog, clm.RoleServer)
	opManager.SetLogger(logger)
	g.Go(func() error {
		return runConsole(ctx, cancel, registry, opManager)
	})

	g.Go(func() error {
		sigs := make(chan os.Signal, 2)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigs)
		select {
		case <-ctx.Done():
			return nil
		case s := <-sigs:
			logger.Info().Str("signal", s.String()).Msg("shutting down")
			cancel()
			return nil
		}
	})

	return g.Wait()
}

func acceptLoop(ctx context.Context, listener *quic.Listener, registry *clm.Registry,
	policy clm.Policy, eventLog *clm.EventLog, cfg *Config, logger zerolog.Logger) error {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		go handleConn(ctx, conn, registry, policy, eventLog, cfg, logger)
	}
}

func handleConn(ctx context.Context, conn quic.Connection, registry *clm.Registry,
	policy clm.Policy, eventLog *clm.EventLog, cfg *Config, logger zerolog.Logger) {
	remote := conn.RemoteAddr().String()
	ep := clm.NewQuicEndpoint(conn)

	// Registry membership mirrors the connection lifetime exactly,
	// including abnormal close.
	entry := registry.Register(ep, remote)
	defer registry.Unregister(entry)

	logger.Info().Str("conn", entry.ID).Str("remote", remote).Msg("connection accepted")

	// The rotation task's ctx derives from the connection's, so closing
	// the connection cancels it promptly and no further ticks touch a
	// torn-down handle.
	rotCtx, rotCancel := context.WithCancel(conn.Context())
	defer rotCancel()

	m := clm.NewManager(policy, eventLog, clm.RoleServer)
	m.SetLogger(logger)
	go func() {
		err := m.Run(rotCtx, ep, cfg.Tick)
		if err != nil && !errors.Is(err, context.Canceled) {
			// A broken rotation log is the one fault the operator must
			// see; surface it and drop the connection.
			logger.Error().Err(err).Str("conn", entry.ID).Msg("rotation task failed")
			_ = conn.CloseWithError(1, "rotation log failure")
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.CloseWithError(0, "server shutdown")
		case <-conn.Context().Done():
		}
	}()

	for {
		st, err := conn.AcceptStream(context.Background())
		if err != nil {
			logger.Info().Str("conn", entry.ID).Str("remote", remote).Msg("connection closed")
			return
		}
		go handleEcho(st)
	}
}
