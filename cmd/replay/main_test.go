package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/displacement-playback/internal/backend"
	"github.com/signalsfoundry/displacement-playback/internal/logging"
)

func writeDocs(t *testing.T, result, configuration string) string {
	t.Helper()
	dir := t.TempDir()
	for path, body := range map[string]string{
		filepath.Join(dir, "simulation_results", "res-1.json"): result,
		filepath.Join(dir, "simulations", "cfg-1.json"):        configuration,
	} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return dir
}

const replayConfiguration = `{"_id": "cfg-1", "sim_period": {"date": "2023-01-01", "length": 3},
	"locations": [
		{"name": "A", "location_type": "conflict_zone", "latitude": 9, "longitude": 38},
		{"name": "C", "location_type": "camp", "latitude": 13, "longitude": 39}
	],
	"conflicts": [{"A": 1}, {"A": 1}, {"A": 0}]}`

func TestReplayPrintsEveryDay(t *testing.T) {
	dir := writeDocs(t, `{"_id": "res-1", "simulation_id": "cfg-1", "data": [
		{"Date": "2023-01-01", "A": 12000, "C": 0},
		{"Date": "2023-01-02", "A": 7000, "C": 5000},
		{"Date": "2023-01-03", "A": 4000, "C": 8000}
	]}`, replayConfiguration)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := replay(ctx, backend.FileFetcher{Dir: dir}, "res-1", time.Millisecond, logging.Noop(), &out); err != nil {
		t.Fatalf("replay: %v", err)
	}

	var lines []string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "Day ") {
			lines = append(lines, line)
		}
	}
	want := []string{
		"Day 0: 2023-01-01  A=12,000  C=0",
		"Day 1: 2023-01-02  A=7,000  C=5,000",
		"Day 2: 2023-01-03  A=4,000  C=8,000",
	}
	if len(lines) != len(want) {
		t.Fatalf("replay output:\n%s\nwant %d lines", out.String(), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestReplayEmptyResult(t *testing.T) {
	dir := writeDocs(t, `{"_id": "res-1", "simulation_id": "cfg-1", "data": []}`, replayConfiguration)

	var out bytes.Buffer
	if err := replay(context.Background(), backend.FileFetcher{Dir: dir}, "res-1", time.Millisecond, logging.Noop(), &out); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out.String(), "no simulated days") {
		t.Fatalf("output = %q, want empty-result notice", out.String())
	}
}

func TestReplayMissingResult(t *testing.T) {
	dir := t.TempDir()
	err := replay(context.Background(), backend.FileFetcher{Dir: dir}, "nope", time.Millisecond, logging.Noop(), &bytes.Buffer{})
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("replay error = %v, want ErrNotFound", err)
	}
}
