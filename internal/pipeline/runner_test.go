package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lox/gridprep/internal/models"
)

func TestStage_SavesAndResumes(t *testing.T) {
	out := t.TempDir()
	ctx := context.Background()

	r, err := NewRunner(out, false)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	build := func(context.Context) ([]models.Substation, error) {
		calls++
		return []models.Substation{{ID: 7, Name: "Seam", Lat: 40, Lon: -100, Interconnect: models.Eastern}}, nil
	}
	if _, err := Stage(ctx, r, "clean", build); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "stages", "clean.json.gz")); err != nil {
		t.Fatalf("stage output missing: %v", err)
	}

	resumed, err := NewRunner(out, true)
	if err != nil {
		t.Fatal(err)
	}
	subs, err := Stage(ctx, resumed, "clean", build)
	if err != nil {
		t.Fatalf("resumed Stage: %v", err)
	}
	if calls != 1 {
		t.Errorf("build called %d times, want 1", calls)
	}
	if len(subs) != 1 || subs[0].ID != 7 || subs[0].Interconnect != models.Eastern {
		t.Errorf("resumed = %+v", subs)
	}
}

func TestStage_RecomputedStageInvalidatesLaterOnes(t *testing.T) {
	out := t.TempDir()
	ctx := context.Background()
	r, _ := NewRunner(out, false)
	for _, name := range []string{"a", "b"} {
		if _, err := Stage(ctx, r, name, func(context.Context) (int, error) { return 1, nil }); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Remove(filepath.Join(out, "stages", "a.json.gz")); err != nil {
		t.Fatal(err)
	}

	resumed, _ := NewRunner(out, true)
	ran := map[string]bool{}
	for _, name := range []string{"a", "b"} {
		v, err := Stage(ctx, resumed, name, func(context.Context) (int, error) {
			ran[name] = true
			return 2, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if v != 2 {
			t.Errorf("stage %s = %d, want recomputed 2", name, v)
		}
	}
	if !ran["a"] || !ran["b"] {
		t.Errorf("ran = %v, want both stages recomputed", ran)
	}
}

func TestStage_ErrorsAreWrappedAndNotSaved(t *testing.T) {
	out := t.TempDir()
	r, _ := NewRunner(out, false)
	bad := &models.DataError{Stage: "clean", Row: "42", Reason: "duplicate coordinates"}
	_, err := Stage(context.Background(), r, "clean", func(context.Context) (int, error) { return 0, bad })
	var de *models.DataError
	if !errors.As(err, &de) || de.Row != "42" {
		t.Fatalf("err = %v, want DataError", err)
	}
	if _, err := os.Stat(filepath.Join(out, "stages", "clean.json.gz")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("failed stage was saved: %v", err)
	}
}

func TestStage_CorruptOutputFailsResume(t *testing.T) {
	out := t.TempDir()
	r, _ := NewRunner(out, true)
	if err := os.WriteFile(filepath.Join(out, "stages", "clean.json.gz"), []byte("not gzip"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Stage(context.Background(), r, "clean", func(context.Context) (int, error) { return 1, nil })
	if err == nil {
		t.Fatal("expected error for corrupt stage output")
	}
}

func TestStage_CancelledContext(t *testing.T) {
	r, _ := NewRunner(t.TempDir(), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Stage(ctx, r, "clean", func(context.Context) (int, error) { return 1, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTopology_MissingInput(t *testing.T) {
	r, _ := NewRunner(t.TempDir(), false)
	err := Topology(context.Background(), r, TopologyInputs{Substations: filepath.Join(t.TempDir(), "missing.csv")}, nil, nil, t.TempDir())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}
