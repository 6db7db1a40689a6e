package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type change struct {
	rel  string
	name string
}

type recorder struct {
	mu      sync.Mutex
	changes []change
}

func (r *recorder) FileChanged(rel, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change{rel, name})
}

func (r *recorder) has(rel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.changes {
		if c.rel == rel {
			return true
		}
	}
	return false
}

func (r *recorder) all() []change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]change(nil), r.changes...)
}

func startWatcher(t *testing.T, root string) *recorder {
	t.Helper()
	rec := &recorder{}
	w, err := New(root, rec, zerolog.Nop())
	require.NoError(t, err)
	w.Settle = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return rec
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestWatcher_PublishesSiteFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	rec := startWatcher(t, root)

	write(t, filepath.Join(root, "css", "site.css"), "body{}")

	assert.Eventually(t, func() bool { return rec.has("css/site.css") }, 3*time.Second, 20*time.Millisecond)
	got := rec.all()
	assert.Equal(t, "site.css", got[0].name)
}

func TestWatcher_IgnoresOtherFilesAndSkippedDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	rec := startWatcher(t, root)

	write(t, filepath.Join(root, "notes.txt"), "x")
	write(t, filepath.Join(root, "node_modules", "pkg", "index.js"), "x")
	write(t, filepath.Join(root, "index.html"), "<html>")

	assert.Eventually(t, func() bool { return rec.has("index.html") }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.all(), 1)
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	rec := startWatcher(t, root)

	dir := filepath.Join(root, "pages")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	// the new directory is picked up asynchronously, so keep writing until seen
	assert.Eventually(t, func() bool {
		write(t, filepath.Join(dir, "about.html"), "<html>")
		return rec.has("pages/about.html")
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	root := t.TempDir()
	rec := startWatcher(t, root)

	path := filepath.Join(root, "app.js")
	for i := 0; i < 5; i++ {
		write(t, path, "console.log(1)")
	}

	assert.Eventually(t, func() bool { return rec.has("app.js") }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.all(), 1)
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "gone"), &recorder{}, zerolog.Nop())
	assert.Error(t, err)
}
