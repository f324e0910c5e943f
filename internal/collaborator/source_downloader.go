package collaborator

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/ulikunitz/xz"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// ProgressSink receives byte-level download progress for one package's
// fetch, letting the caller drive an mpb bar without coupling
// SourceDownloader to any particular UI. Nil means no reporting.
type ProgressSink interface {
	Add(packageName string, total int64) *mpb.Bar
}

// SourceDownloader is the shipped source-fetching half of the
// ActionExecutor contract, covering both HTTP sources (net/http plus
// checksum verification) and git sources (go-git). Archives are extracted
// in place, with xz support for .tar.xz payloads.
type SourceDownloader struct {
	client    *http.Client
	cacheDir  string
	progress  ProgressSink
}

// NewSourceDownloader creates a SourceDownloader that caches fetched
// artifacts under cacheDir. progress may be nil.
func NewSourceDownloader(cacheDir string, progress ProgressSink) *SourceDownloader {
	return &SourceDownloader{
		client:   http.DefaultClient,
		cacheDir: cacheDir,
		progress: progress,
	}
}

// Fetch retrieves p's source, verifies its checksum when the source
// carries one, extracts it into a working directory, and returns that
// directory's path.
func (d *SourceDownloader) Fetch(ctx context.Context, p pkgset.Package, src pkgset.Source) (string, error) {
	workDir := filepath.Join(d.cacheDir, p.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", NewInternalError(fmt.Sprintf("create work dir for %s: %v", p.String(), err))
	}

	switch src.Kind {
	case pkgset.SourceKindGit:
		if err := d.fetchGit(ctx, src, workDir); err != nil {
			return "", err
		}
	case pkgset.SourceKindHTTP:
		archivePath := filepath.Join(d.cacheDir, p.String()+archiveSuffix(src.URL))
		if err := d.fetchHTTP(ctx, p, src, archivePath); err != nil {
			return "", err
		}
		if err := d.extract(archivePath, workDir); err != nil {
			return "", err
		}
	default:
		return "", NewPackageError(fmt.Sprintf("unsupported source kind for %s", p.String()), nil)
	}

	if err := os.WriteFile(filepath.Join(workDir, ".source-fetched"), []byte(src.URL+"\n"), 0o644); err != nil {
		return "", NewInternalError(fmt.Sprintf("mark source fetched for %s: %v", p.String(), err))
	}
	return workDir, nil
}

// WarmCache primes the archive cache for an HTTP-repository source by
// issuing a HEAD request against the archive URL, surfacing unreachable
// mirrors before the parallel fetch stage spins up. Git sources, pinned
// sources, and already-cached archives are skipped.
func (d *SourceDownloader) WarmCache(ctx context.Context, p pkgset.Package, src pkgset.Source) error {
	if !src.IsHTTPRepository() || src.Pinned {
		return nil
	}
	archivePath := filepath.Join(d.cacheDir, p.String()+archiveSuffix(src.URL))
	if _, err := os.Stat(archivePath); err == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, src.URL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("warm %s: HTTP %d", src.URL, resp.StatusCode)
	}
	return nil
}

func (d *SourceDownloader) fetchGit(ctx context.Context, src pkgset.Source, destPath string) error {
	slog.Debug("cloning source", "url", src.GitURL, "ref", src.GitRef, "dest", destPath)
	opts := &git.CloneOptions{URL: src.GitURL}
	if src.GitRef != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.GitRef)
	}
	if _, err := git.PlainCloneContext(ctx, destPath, false, opts); err != nil {
		return NewProcessError(0, 0, nil, nil, fmt.Errorf("git clone %s: %w", src.GitURL, err))
	}
	return nil
}

func (d *SourceDownloader) fetchHTTP(ctx context.Context, p pkgset.Package, src pkgset.Source, destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		slog.Debug("using cached archive", "path", destPath)
		return d.verify(destPath, src.Checksum)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return NewInternalError(fmt.Sprintf("build request for %s: %v", p.String(), err))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return NewProcessError(0, 0, nil, nil, fmt.Errorf("download %s: %w", src.URL, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return NewProcessError(resp.StatusCode, 0, nil, nil, fmt.Errorf("download %s: HTTP %d", src.URL, resp.StatusCode))
	}

	tmp := destPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return NewInternalError(fmt.Sprintf("create archive file: %v", err))
	}

	var reader io.Reader = resp.Body
	if d.progress != nil {
		bar := d.progress.Add(p.Name, resp.ContentLength)
		if bar != nil {
			reader = bar.ProxyReader(resp.Body)
		}
	}

	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(tmp)
		return NewInternalError(fmt.Sprintf("write archive for %s: %v", p.String(), err))
	}
	if err := f.Close(); err != nil {
		return NewInternalError(fmt.Sprintf("close archive for %s: %v", p.String(), err))
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return NewInternalError(fmt.Sprintf("rename archive for %s: %v", p.String(), err))
	}

	return d.verify(destPath, src.Checksum)
}

func (d *SourceDownloader) verify(path string, cs *pkgset.Checksum) error {
	if cs == nil || cs.Value == "" {
		slog.Debug("no checksum specified, skipping verification", "path", path)
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return NewInternalError(fmt.Sprintf("open %s for checksum: %v", path, err))
	}
	defer f.Close()

	var sum string
	switch strings.ToLower(cs.Algorithm) {
	case "sha512":
		h := sha512.New()
		if _, err := io.Copy(h, f); err != nil {
			return NewInternalError(fmt.Sprintf("hash %s: %v", path, err))
		}
		sum = hex.EncodeToString(h.Sum(nil))
	default:
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return NewInternalError(fmt.Sprintf("hash %s: %v", path, err))
		}
		sum = hex.EncodeToString(h.Sum(nil))
	}

	if !strings.EqualFold(sum, cs.Value) {
		return NewPackageError(fmt.Sprintf("checksum mismatch for %s: want %s got %s", path, cs.Value, sum), nil)
	}
	return nil
}

func (d *SourceDownloader) extract(archivePath, destDir string) error {
	switch {
	case strings.HasSuffix(archivePath, ".tar.xz"):
		return extractTarXz(archivePath, destDir)
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return extractTarGz(archivePath, destDir)
	default:
		return NewPackageError(fmt.Sprintf("unsupported archive format: %s", archivePath), nil)
	}
}

func extractTarXz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return NewInternalError(fmt.Sprintf("open %s: %v", archivePath, err))
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return NewInternalError(fmt.Sprintf("init xz reader for %s: %v", archivePath, err))
	}
	return extractTar(tar.NewReader(xr), destDir)
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return NewInternalError(fmt.Sprintf("open %s: %v", archivePath, err))
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return NewInternalError(fmt.Sprintf("init gzip reader for %s: %v", archivePath, err))
	}
	defer gz.Close()
	return extractTar(tar.NewReader(gz), destDir)
}

func extractTar(tr *tar.Reader, destDir string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return NewInternalError(fmt.Sprintf("read tar entry: %v", err))
		}
		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return NewPackageError(fmt.Sprintf("archive entry escapes destination: %s", hdr.Name), nil)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return NewInternalError(fmt.Sprintf("mkdir %s: %v", target, err))
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return NewInternalError(fmt.Sprintf("mkdir %s: %v", filepath.Dir(target), err))
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return NewInternalError(fmt.Sprintf("create %s: %v", target, err))
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return NewInternalError(fmt.Sprintf("write %s: %v", target, err))
			}
			out.Close()
		}
	}
}

func archiveSuffix(url string) string {
	switch {
	case strings.HasSuffix(url, ".tar.xz"):
		return ".tar.xz"
	case strings.HasSuffix(url, ".tar.gz"):
		return ".tar.gz"
	case strings.HasSuffix(url, ".tgz"):
		return ".tgz"
	default:
		return ".archive"
	}
}

// BarProgressSink is the mpb-backed ProgressSink used by the CLI when it
// is attached to a terminal.
type BarProgressSink struct {
	progress *mpb.Progress
}

// NewBarProgressSink wraps an existing mpb.Progress container.
func NewBarProgressSink(p *mpb.Progress) *BarProgressSink {
	return &BarProgressSink{progress: p}
}

// Add starts a new download bar for packageName.
func (s *BarProgressSink) Add(packageName string, total int64) *mpb.Bar {
	if s.progress == nil {
		return nil
	}
	return s.progress.AddBar(total,
		mpb.PrependDecorators(decor.Name(packageName)),
		mpb.AppendDecorators(decor.CountersKiloByte("% .1f / % .1f")),
	)
}
