// Command replay plays a simulation result headlessly and prints one line per
// simulated day.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/signalsfoundry/displacement-playback/internal/backend"
	"github.com/signalsfoundry/displacement-playback/internal/logging"
	"github.com/signalsfoundry/displacement-playback/internal/session"
)

func main() {
	backendURL := flag.String("backend-url", os.Getenv("PLAYBACK_BACKEND_URL"), "base URL of the simulation backend")
	dir := flag.String("dir", "", "read documents from a local directory instead of the backend")
	resultID := flag.String("result", "", "ID of the simulation result to replay")
	tick := flag.Duration("tick", 50*time.Millisecond, "wall-clock time per simulated day")
	flag.Parse()

	if *resultID == "" {
		fmt.Fprintln(os.Stderr, "replay: -result is required")
		os.Exit(2)
	}

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fetcher backend.Fetcher
	switch {
	case *dir != "":
		fetcher = backend.FileFetcher{Dir: *dir}
	case *backendURL != "":
		client, err := backend.NewClient(*backendURL, backend.WithLogger(log))
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay: %v\n", err)
			os.Exit(2)
		}
		fetcher = client
	default:
		fmt.Fprintln(os.Stderr, "replay: one of -dir or -backend-url is required")
		os.Exit(2)
	}

	if err := replay(ctx, fetcher, *resultID, *tick, log, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

// replay opens resultID, plays it from day 0 and writes each day until the
// last one has been shown.
func replay(ctx context.Context, fetcher backend.Fetcher, resultID string, tick time.Duration, log logging.Logger, out io.Writer) error {
	manager := session.NewManager(fetcher, log, session.WithTickInterval(tick))
	defer manager.CloseAll()

	sess, err := manager.Open(ctx, resultID)
	if err != nil {
		return err
	}
	if sess.Status() != session.StatusReady {
		return fmt.Errorf("load %s: %w", resultID, sess.Err())
	}
	for _, w := range sess.Warnings() {
		fmt.Fprintf(out, "warning: %s\n", w)
	}

	stopped := make(chan struct{})
	defer close(stopped)
	views := make(chan session.View, 16)
	unsubscribe := sess.Subscribe(func(v session.View) {
		select {
		case views <- v:
		case <-stopped:
		}
	})
	defer unsubscribe()

	first := sess.View()
	if first.Frame == nil {
		fmt.Fprintf(out, "%s: no simulated days to replay\n", resultID)
		return nil
	}
	writeDay(out, first)
	if first.Scrubber.Max == 0 {
		return nil
	}

	if _, err := sess.Play(); err != nil {
		return err
	}
	shown, seq := first.Scrubber.Value, first.Seq
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-views:
			if v.Seq <= seq || v.Frame == nil {
				continue
			}
			seq = v.Seq
			if v.Scrubber.Value != shown {
				shown = v.Scrubber.Value
				writeDay(out, v)
			}
			if !v.Playing && shown == v.Scrubber.Max {
				return nil
			}
			if v.Status != session.StatusReady.String() {
				return errors.New("session stopped before the last day")
			}
		}
	}
}

func writeDay(out io.Writer, v session.View) {
	var b strings.Builder
	b.WriteString(v.DayLabel)
	for _, loc := range v.Frame.Locations {
		if loc.ObservedCount == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s=%s", loc.Name, humanize.Comma(int64(math.Round(*loc.ObservedCount))))
	}
	fmt.Fprintln(out, b.String())
}
