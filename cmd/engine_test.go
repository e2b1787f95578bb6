package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/aist/internal/config"
	"github.com/andresmejia3/aist/internal/gallery"
	"github.com/andresmejia3/aist/internal/identity"
)

// withConfig swaps the package config for the duration of a test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
}

func TestLoadGallery(t *testing.T) {
	c := config.Default()
	c.Gallery = filepath.Join(t.TempDir(), "core.gob")
	withConfig(t, c)

	g, err := loadGallery()
	if err != nil {
		t.Fatalf("missing gallery should load empty, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}

	g.Add("Alice", identity.Embedding{1, 2})
	if err := gallery.Save(c.Gallery, g); err != nil {
		t.Fatal(err)
	}
	g, err = loadGallery()
	if err != nil {
		t.Fatal(err)
	}
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1", g.Len())
	}
}

func TestOpenJournal(t *testing.T) {
	c := config.Default()
	c.Logs.Enabled = false
	c.Logs.Dir = t.TempDir()
	withConfig(t, c)

	j, err := openJournal(0)
	if err != nil || j != nil {
		t.Fatalf("disabled logging should give no journal, got %v, %v", j, err)
	}

	c.Logs.Enabled = true
	j, err = openJournal(0)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(j.Dir()) != c.Logs.Dir {
		t.Errorf("session dir %s is not under %s", j.Dir(), c.Logs.Dir)
	}
	closeJournal(j)
}

func TestWorkerConfig(t *testing.T) {
	c := config.Default()
	c.Engine.TimeoutSecs = 5
	c.Engine.Debug = true
	withConfig(t, c)

	wc := workerConfig()
	if wc.ReadTimeout != 5*time.Second || !wc.Debug || wc.Script != c.Engine.Script {
		t.Errorf("workerConfig() = %+v", wc)
	}
}

func TestNewRecognizer_Index(t *testing.T) {
	c := config.Default()
	c.Match.Index = "hnsw"
	c.Match.Candidates = 4
	withConfig(t, c)

	r := newRecognizer(identity.NewGallery(), nil, 0.5)
	if !r.UseIndex || r.Candidates != 4 || r.Threshold != 0.5 {
		t.Errorf("newRecognizer() = %+v", r)
	}
}
