package collaborator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcepm/sourcepm/internal/pkgset"
)

func TestWarmCacheProbesHTTPSource(t *testing.T) {
	heads := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewSourceDownloader(t.TempDir(), nil)
	src := pkgset.Source{Kind: pkgset.SourceKindHTTP, URL: srv.URL + "/foo.tar.gz"}

	require.NoError(t, d.WarmCache(context.Background(), pkgset.Package{Name: "foo", Version: "1"}, src))
	assert.Equal(t, 1, heads)
}

func TestWarmCacheSkipsGitAndPinnedSources(t *testing.T) {
	d := NewSourceDownloader(t.TempDir(), nil)

	gitSrc := pkgset.Source{Kind: pkgset.SourceKindGit, GitURL: "https://example.invalid/g.git"}
	require.NoError(t, d.WarmCache(context.Background(), pkgset.Package{Name: "g", Version: "1"}, gitSrc))

	pinnedSrc := pkgset.Source{Kind: pkgset.SourceKindHTTP, URL: "http://example.invalid/p.tar.gz", Pinned: true}
	require.NoError(t, d.WarmCache(context.Background(), pkgset.Package{Name: "p", Version: "1"}, pinnedSrc))
}

func TestWarmCacheSkipsAlreadyCachedArchive(t *testing.T) {
	cacheDir := t.TempDir()
	p := pkgset.Package{Name: "foo", Version: "1"}
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, p.String()+".tar.gz"), []byte("cached"), 0o644))

	d := NewSourceDownloader(cacheDir, nil)
	src := pkgset.Source{Kind: pkgset.SourceKindHTTP, URL: "http://example.invalid/foo.tar.gz"}

	// The URL is unreachable, so a nil error proves no request was made.
	require.NoError(t, d.WarmCache(context.Background(), p, src))
}

func TestWarmCacheReportsUnreachableMirror(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewSourceDownloader(t.TempDir(), nil)
	src := pkgset.Source{Kind: pkgset.SourceKindHTTP, URL: srv.URL + "/foo.tar.gz"}

	assert.Error(t, d.WarmCache(context.Background(), pkgset.Package{Name: "foo", Version: "1"}, src))
}
