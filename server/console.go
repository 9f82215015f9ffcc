package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"cidrotate/clm"
)

// runConsole is the operator control surface: a line-oriented command loop
// on stdin.
//
// Commands:
//
//	help, ?            usage
//	status             active-connection count and effective policy
//	connections, conn  list live connections
//	rotate, r          force a rotation attempt on every connection
//	quit, exit, q      shut the server down
//
// Unrecognized input prints a usage hint and is otherwise a no-op.
func runConsole(ctx context.Context, cancel context.CancelFunc, reg *clm.Registry, m *clm.Manager) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()

	heading := color.New(color.FgCyan, color.Bold)
	warn := color.New(color.FgYellow)

	heading.Println("cidrotate console; type 'help' for commands")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, open := <-lines:
			if !open {
				// stdin closed (running detached); keep serving without
				// a console.
				<-ctx.Done()
				return ctx.Err()
			}
			switch strings.ToLower(line) {
			case "":
			case "help", "?":
				printHelp()
			case "status":
				p := m.Policy()
				fmt.Printf("connections: %d\n", reg.Len())
				fmt.Printf("policy: interval=%s jitter=%s min_gap=%s retry_on_failure=%v\n",
					p.Interval, p.Jitter, p.MinGap, p.RetryOnFailure)
			case "connections", "conn":
				snap := reg.Snapshot()
				if len(snap) == 0 {
					fmt.Println("no live connections")
					break
				}
				for _, c := range snap {
					fmt.Printf("%s  %-21s  up %s\n", c.ID, c.Remote, time.Since(c.Opened).Round(time.Second))
				}
			case "rotate", "r":
				n, err := reg.ForceRotateAll(m)
				if err != nil {
					// Only a rotation-log failure aborts the sweep.
					return fmt.Errorf("rotate-all: %w", err)
				}
				fmt.Printf("rotation attempted on %d connection(s)\n", n)
			case "quit", "exit", "q":
				cancel()
				return nil
			default:
				warn.Printf("unknown command %q; type 'help' for commands\n", line)
			}
		}
	}
}

func printHelp() {
	fmt.Println("commands:")
	fmt.Println("  help, ?            show this help")
	fmt.Println("  status             active-connection count and rotation policy")
	fmt.Println("  connections, conn  list live connections")
	fmt.Println("  rotate, r          force a CID rotation attempt on all connections")
	fmt.Println("  quit, exit, q      shut down")
}
