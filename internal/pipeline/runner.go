// Package pipeline runs the topology stages in order, persisting each stage's
// output so an interrupted run can resume at the last completed boundary.
package pipeline

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Runner owns the stage directory of one output tree.
type Runner struct {
	Dir    string
	RunID  string
	Resume bool

	// ran is set once a stage has been recomputed; later stages depend on
	// it and are never resumed after that.
	ran bool
	now func() time.Time
}

// NewRunner creates <out>/stages and a fresh run ID.
func NewRunner(out string, resume bool) (*Runner, error) {
	dir := filepath.Join(out, "stages")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create stage dir: %w", err)
	}
	return &Runner{Dir: dir, RunID: uuid.NewString(), Resume: resume, now: time.Now}, nil
}

type envelope[T any] struct {
	Stage     string    `json:"stage"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Data      T         `json:"data"`
}

func (r *Runner) path(name string) string {
	return filepath.Join(r.Dir, name+".json.gz")
}

// Stage returns the saved output of name when resuming and one exists;
// otherwise it runs fn and saves the result before returning it. Once any
// stage runs, every later stage runs too.
func Stage[T any](ctx context.Context, r *Runner, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if r.Resume && !r.ran {
		env, err := load[T](r.path(name))
		switch {
		case err == nil:
			log.Printf("pipeline: resumed %s from run %s (%s)", name, env.RunID, env.CreatedAt.Format(time.RFC3339))
			return env.Data, nil
		case !errors.Is(err, fs.ErrNotExist):
			return zero, fmt.Errorf("resume %s: %w", name, err)
		}
	}

	r.ran = true
	start := r.now()
	out, err := fn(ctx)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	env := envelope[T]{Stage: name, RunID: r.RunID, CreatedAt: start.UTC(), Data: out}
	if err := save(r.path(name), env); err != nil {
		return zero, fmt.Errorf("save %s: %w", name, err)
	}
	log.Printf("pipeline: %s done in %s", name, r.now().Sub(start).Round(time.Millisecond))
	return out, nil
}

func load[T any](path string) (*envelope[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	var env envelope[T]
	if err := json.NewDecoder(zr).Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func save(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	zw := gzip.NewWriter(tmp)
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
