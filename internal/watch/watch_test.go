package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/internal/testutil"
)

func TestMatches(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "expr.fhirpath")
	files := map[string]bool{file: true}
	dirs := []string{filepath.Join(dir, "data")}

	tests := []struct {
		name string
		path string
		exts []string
		want bool
	}{
		{"watched file", file, nil, true},
		{"sibling of watched file", filepath.Join(dir, "other.fhirpath"), nil, false},
		{"file in watched dir", filepath.Join(dir, "data", "p.json"), nil, true},
		{"extension filter accepts", filepath.Join(dir, "data", "p.json"), []string{".json"}, true},
		{"extension filter rejects", filepath.Join(dir, "data", "p.txt"), []string{".json"}, false},
		{"nested dir", filepath.Join(dir, "data", "sub", "p.JSON"), []string{".json"}, true},
		{"outside", filepath.Join(dir, "datax", "p.json"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(tt.path, files, dirs, tt.exts))
		})
	}
}

func TestWatchFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watcher test in short mode")
	}
	dir := t.TempDir()
	file := filepath.Join(dir, "expr.fhirpath")
	require.NoError(t, os.WriteFile(file, []byte("Patient.name"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{file}, Options{Debounce: 20 * time.Millisecond, Logger: testutil.NewTestLogger(t)},
			func(name string) { changed <- name })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(file, []byte("Patient.gender"), 0o600))

	select {
	case name := <-changed:
		assert.Equal(t, "expr.fhirpath", filepath.Base(name))
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchNewSubdirectory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watcher test in short mode")
	}
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{dir}, Options{Extensions: []string{".json"}, Debounce: 20 * time.Millisecond, Logger: testutil.NewTestLogger(t)},
			func(name string) { changed <- name })
	}()

	time.Sleep(100 * time.Millisecond)
	sub := filepath.Join(dir, "bundles")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "p1.json"), []byte(`{"resourceType":"Patient"}`), 0o600))

	select {
	case name := <-changed:
		assert.Equal(t, "p1.json", filepath.Base(name))
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported in new directory")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchWaitsForRunningCallback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watcher test in short mode")
	}
	dir := t.TempDir()
	file := filepath.Join(dir, "expr.fhirpath")
	require.NoError(t, os.WriteFile(file, []byte("Patient.name"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{}, 1)
	var finished atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{file}, Options{Debounce: 10 * time.Millisecond, Logger: testutil.NewTestLogger(t)},
			func(string) {
				select {
				case started <- struct{}{}:
				default:
				}
				time.Sleep(200 * time.Millisecond)
				finished.Store(true)
			})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(file, []byte("Patient.gender"), 0o600))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load(), "Watch returned while the callback was running")
}

func TestWatchMissingPath(t *testing.T) {
	err := Watch(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, Options{}, func(string) {})
	assert.Error(t, err)
}
