package pkgset

// SourceKind discriminates the transport used to fetch a package's sources.
type SourceKind string

const (
	// SourceKindHTTP fetches a single archive or raw file over HTTP(S).
	SourceKindHTTP SourceKind = "http"
	// SourceKindGit clones a git repository at a given ref.
	SourceKindGit SourceKind = "git"
)

// Checksum pins the expected hash of a downloaded artifact. Algorithm is
// e.g. "sha256"; an empty Value skips verification.
type Checksum struct {
	Algorithm string
	Value     string
}

// Source describes where a package's sources come from. Exactly one of
// the Kind-specific fields is meaningful, selected by Kind.
type Source struct {
	Kind SourceKind

	// HTTP fields.
	URL      string
	Checksum *Checksum

	// Git fields.
	GitURL string
	GitRef string

	// Pinned marks a source that was overridden locally (e.g. a
	// developer working against a local checkout). Pinned packages skip
	// certain post-delete cleanups and are excluded from the HTTP cache
	// warm-up optimisation.
	Pinned bool
}

// IsHTTPRepository reports whether this source is fetched from an HTTP(S)
// repository, the condition that decides cache warm-up eligibility.
func (s Source) IsHTTPRepository() bool {
	return s.Kind == SourceKindHTTP && s.URL != ""
}
