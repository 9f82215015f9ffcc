package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"cidrotate/clm"
)

// Offline report over a rotation event log: total count, per-kind counts,
// and the trailing records in full. Read-side only; it never writes.
func main() {
	var path string
	var lastN int
	flag.StringVar(&path, "log", "", "rotation log file (JSONL)")
	flag.IntVar(&lastN, "n", 10, "number of trailing records to print in full")
	flag.Parse()

	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -log rotation.jsonl [-n 10]")
		os.Exit(2)
	}
	if err := report(os.Stdout, path, lastN); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func report(w io.Writer, path string, lastN int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var events []clm.Event
	malformed := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev clm.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			malformed++
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return err
	}

	counts := map[clm.Kind]int{}
	for _, ev := range events {
		counts[ev.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	fmt.Fprintf(w, "Total events: %d\n", len(events))
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[clm.Kind(k)])
	}
	if malformed > 0 {
		fmt.Fprintf(w, "Malformed lines skipped: %d\n", malformed)
	}

	start := len(events)
	if lastN > 0 {
		if start = len(events) - lastN; start < 0 {
			start = 0
		}
	}
	for _, ev := range events[start:] {
		b, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	}
	return nil
}
