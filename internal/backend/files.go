package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/signalsfoundry/displacement-playback/model"
)

// FileFetcher serves documents from a directory laid out like the backend:
// {dir}/simulation_results/{id}.json and {dir}/simulations/{id}.json.
type FileFetcher struct {
	Dir string
}

func (f FileFetcher) FetchResult(ctx context.Context, id string) (*model.Result, error) {
	var result model.Result
	if err := f.load(ctx, ResourceResult, id, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		result.ID = id
	}
	return &result, nil
}

func (f FileFetcher) FetchConfiguration(ctx context.Context, id string) (*model.Configuration, error) {
	var cfg model.Configuration
	if err := f.load(ctx, ResourceConfiguration, id, &cfg); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = id
	}
	return &cfg, nil
}

func (f FileFetcher) load(ctx context.Context, resource, id string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" || filepath.Base(id) != id {
		return fmt.Errorf("load %s %q: %w", resource, id, ErrNotFound)
	}
	path := filepath.Join(f.Dir, resourcePaths[resource], id+".json")
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s %s: %w", resource, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load %s %s: %w", resource, id, err)
	}
	defer file.Close()
	return Decode(file, out)
}

// Decode reads one JSON document from r into out.
func Decode(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
