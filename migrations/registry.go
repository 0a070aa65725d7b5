package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	credstate "github.com/tavenor/credstate"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// defaultSourceLabel tags registered migrations so hosts running several
// embedded migration sets can tell them apart in their migration table.
const defaultSourceLabel = "credstate"

// dialectSubdirs lays out the embedded tree: postgres files sit at the root
// of data/sql/migrations, sqlite rewrites live in the sqlite subdirectory.
var dialectSubdirs = map[string]string{
	DialectPostgres: "",
	DialectSQLite:   "sqlite",
}

// FilesystemSpec points a migration runner at one dialect's filesystem.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration describes what Register handed to the host's migration
// runner: the process and lease schema filesystems per dialect.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets restricts registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		next := normalizeDialects(targets)
		if len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

// WithFilesystems swaps in caller-provided migration filesystems, for hosts
// that overlay the embedded schema with their own extensions.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		copied := make([]FilesystemSpec, 0, len(filesystems))
		for _, spec := range filesystems {
			dialect := strings.TrimSpace(strings.ToLower(spec.Dialect))
			if dialect == "" || spec.FS == nil {
				continue
			}
			copied = append(copied, FilesystemSpec{
				Dialect: dialect,
				Path:    spec.Path,
				FS:      spec.FS,
			})
		}
		if len(copied) > 0 {
			r.Filesystems = copied
		}
	}
}

// Filesystems resolves the per-dialect migration filesystems from the
// embedded tree, or from sources[0] when a caller supplies an override.
// Every dialect must carry at least one complete up/down migration pair.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := credstate.GetCoreMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}

	filesystems := make([]FilesystemSpec, 0, len(dialectSubdirs))
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		spec, specErr := dialectFilesystem(base, basePath, dialect)
		if specErr != nil {
			return nil, specErr
		}
		filesystems = append(filesystems, spec)
	}
	return filesystems, nil
}

func dialectFilesystem(base fs.FS, basePath string, dialect string) (FilesystemSpec, error) {
	spec := FilesystemSpec{Dialect: dialect, Path: basePath, FS: base}
	if subdir := dialectSubdirs[dialect]; subdir != "" {
		sub, err := fs.Sub(base, subdir)
		if err != nil {
			return FilesystemSpec{}, fmt.Errorf("migrations: resolve %s filesystem: %w", dialect, err)
		}
		spec.Path = pathJoin(basePath, subdir)
		spec.FS = sub
	}
	if err := checkMigrationPairs(spec); err != nil {
		return FilesystemSpec{}, err
	}
	return spec, nil
}

// checkMigrationPairs verifies the dialect tree holds the schema migrations
// and that every up script has a matching down script.
func checkMigrationPairs(spec FilesystemSpec) error {
	ups, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, err)
	}
	if len(ups) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, statErr := fs.Stat(spec.FS, down); statErr != nil {
			return fmt.Errorf("migrations: %s migration %q has no down script: %w", spec.Dialect, up, statErr)
		}
	}
	return nil
}

// Register resolves the embedded migration filesystems and hands each
// targeted dialect to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       defaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	if err := reg.validate(); err != nil {
		return reg, err
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	targets := make(map[string]struct{}, len(reg.ValidationTargets))
	for _, target := range normalizeDialects(reg.ValidationTargets) {
		targets[target] = struct{}{}
	}
	for _, spec := range reg.Filesystems {
		if _, wanted := targets[spec.Dialect]; !wanted {
			continue
		}
		if spec.FS == nil {
			return reg, fmt.Errorf("migrations: filesystem for %s is nil", spec.Dialect)
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}

	return reg, nil
}

func (r Registration) validate() error {
	if strings.TrimSpace(r.SourceLabel) == "" {
		return fmt.Errorf("migrations: source label is required")
	}
	if len(r.ValidationTargets) == 0 {
		return fmt.Errorf("migrations: validation targets are required")
	}
	if len(r.Filesystems) == 0 {
		return fmt.Errorf("migrations: filesystems are required")
	}
	return nil
}

// migrationsRoot locates the migration tree inside root. Hosts may hand in
// either a repository-shaped filesystem or the migration directory itself.
func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	sub, err := fs.Sub(root, "data/sql/migrations")
	if err == nil {
		return sub, "data/sql/migrations", nil
	}

	entries, readErr := fs.ReadDir(root, ".")
	if readErr == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				return root, ".", nil
			}
		}
	}

	return nil, "", fmt.Errorf("migrations: data/sql/migrations not found: %w", err)
}

func normalizeDialects(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func pathJoin(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
