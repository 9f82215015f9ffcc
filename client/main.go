package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	"cidrotate/clm"
)

// QUIC echo client. Sends newline-framed messages and prints the echoes;
// with -rotate-interval > 0 it also runs a client-role CID rotation loop
// on the connection for as long as it stays open.
func main() {
	var target, msg, alpn, logPath string
	var count int
	var interval, stay time.Duration
	var rotateInterval, rotateJitter, rotateMinGap time.Duration
	var insecure, verbose bool

	flag.StringVar(&target, "target", "127.0.0.1:8443", "server addr")
	flag.StringVar(&msg, "msg", "hello quic", "message to echo")
	flag.IntVar(&count, "count", 5, "number of messages")
	flag.DurationVar(&interval, "interval", 500*time.Millisecond, "delay between messages")
	flag.DurationVar(&stay, "stay", 0, "keep the connection open after the last echo")
	flag.StringVar(&alpn, "alpn", "hq-interop", "ALPN protocol")
	flag.BoolVar(&insecure, "insecure", true, "skip server certificate verification (demo)")
	flag.StringVar(&logPath, "rotation-log", "rotation_client.jsonl", "rotation log path")
	flag.DurationVar(&rotateInterval, "rotate-interval", 0, "client-side CID rotation interval (0 disables)")
	flag.DurationVar(&rotateJitter, "rotate-jitter", time.Second, "rotation jitter bound")
	flag.DurationVar(&rotateMinGap, "rotate-min-gap", 2*time.Second, "minimum gap between rotations")
	flag.BoolVar(&verbose, "verbose", false, "debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().Timestamp().Logger()

	err := run(target, msg, alpn, logPath, count, interval, stay,
		clm.Policy{Interval: rotateInterval, Jitter: rotateJitter, MinGap: rotateMinGap},
		insecure, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("client exited")
	}
}

func run(target, msg, alpn, logPath string, count int, interval, stay time.Duration,
	policy clm.Policy, insecure bool, logger zerolog.Logger) error {
	ctx := context.Background()

	tlsConf := &tls.Config{
		InsecureSkipVerify: insecure,
		NextProtos:         []string{alpn},
	}
	conn, err := quic.DialAddr(ctx, target, tlsConf, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 2 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.CloseWithError(0, "done")
	logger.Info().Str("target", target).Msg("connected")

	if policy.Interval > 0 {
		eventLog, err := clm.NewEventLog(logPath)
		if err != nil {
			return fmt.Errorf("rotation log: %w", err)
		}
		defer eventLog.Close()

		m := clm.NewManager(policy, eventLog, clm.RoleClient)
		m.SetLogger(logger)

		rotCtx, rotCancel := context.WithCancel(conn.Context())
		defer rotCancel()
		go func() {
			err := m.Run(rotCtx, clm.NewQuicEndpoint(conn), clm.DefaultTick)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("rotation task failed")
			}
		}()
	}

	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer st.Close()

	r := bufio.NewReader(st)
	w := bufio.NewWriter(st)
	for i := 0; i < count; i++ {
		line := msg
		if count > 1 {
			line = fmt.Sprintf("%s %d", msg, i)
		}
		start := time.Now()
		if _, err := w.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		echo, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read echo: %w", err)
		}
		fmt.Printf("echo: %s (rtt=%dms)\n", strings.TrimSpace(echo), time.Since(start).Milliseconds())
		if i+1 < count {
			time.Sleep(interval)
		}
	}

	if stay > 0 {
		logger.Info().Dur("stay", stay).Msg("holding connection open")
		select {
		case <-time.After(stay):
		case <-conn.Context().Done():
		}
	}
	return nil
}
