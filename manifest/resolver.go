package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tessera.manifest")

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Package   string    // package the dependency provides
	Manifest  *Manifest // the dependency's own manifest (may be nil)
	Declared  Dependency
}

// SourceFiles returns the program model files of the dependency. Without a
// manifest of its own, the default source patterns apply.
func (rd *ResolvedDep) SourceFiles() ([]string, error) {
	m := rd.Manifest
	if m == nil {
		m = &Manifest{Dir: rd.LocalPath, Source: Source{Files: []string{"model/*.yaml", "model/*.cbor"}}}
	}
	return m.SourceFiles()
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (topologically sorted: dependencies before dependents).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}

	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	depsDir := r.manifest.DepsDir()
	if err := os.MkdirAll(depsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating deps dir: %w", err)
	}

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest, resolved)
	if err != nil {
		return nil, err
	}

	owners := make(map[string]string)
	for _, rd := range order {
		if other, ok := owners[rd.Package]; ok {
			return nil, fmt.Errorf("dependencies %q and %q both provide package %q", other, rd.Name, rd.Package)
		}
		owners[rd.Package] = rd.Name
	}

	if err := r.writeLock(order); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return order, nil
}

// resolveAll resolves the dependencies of m recursively, in name order.
// Returns dependencies in topological order (deps before dependents).
func (r *Resolver) resolveAll(m *Manifest, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue // already resolved
		}

		rd, err := r.resolveOne(m, name, m.Dependencies[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}

		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.Manifest, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}

		order = append(order, *rd)
	}

	return order, nil
}

// resolveOne resolves a single dependency declared by m. Relative paths are
// taken from the declaring manifest.
func (r *Resolver) resolveOne(m *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	var dir string
	switch {
	case dep.Path != "":
		localPath, err := filepath.Abs(m.Path(dep.Path))
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if _, err := os.Stat(localPath); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
		}
		dir = localPath

	case dep.Git != "":
		dir = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.checkout(dir, name, dep); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	// Try to load its manifest
	depManifest, _ := Load(dir)

	pkg, err := packageName(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	log.Debugf("resolved %s to package %s at %s", name, pkg, dir)

	return &ResolvedDep{
		Name:      name,
		LocalPath: dir,
		Package:   pkg,
		Manifest:  depManifest,
		Declared:  dep,
	}, nil
}

func (r *Resolver) checkout(dir, name string, dep Dependency) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(dep.Git, dir); err != nil {
			return err
		}
	} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
		log.Infof("fetching %s", name)
		if err := gitFetch(dir); err != nil {
			return err
		}
	}

	if clean, err := gitIsClean(dir); err == nil && !clean {
		log.Warningf("dependency %s has uncommitted changes in %s", name, dir)
	}

	if dep.Tag != "" {
		return gitCheckout(dir, dep.Tag)
	}
	return nil
}

// writeLock writes the resolved dependencies to the lock file.
func (r *Resolver) writeLock(order []ResolvedDep) error {
	lf := &LockFile{}

	for _, rd := range order {
		ld := LockedDep{
			Name:    rd.Name,
			Package: rd.Package,
		}

		dep := rd.Declared
		if dep.Git != "" {
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		} else {
			ld.Path = rd.LocalPath
		}

		lf.Deps = append(lf.Deps, ld)
	}

	lockDir := filepath.Dir(r.manifest.LockFilePath())
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return err
	}

	return WriteLock(r.manifest.LockFilePath(), lf)
}
