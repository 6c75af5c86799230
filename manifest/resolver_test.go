package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPackageName(t *testing.T) {
	tests := []struct {
		name        string
		depName     string
		dep         Dependency
		depManifest *Manifest
		want        string
		wantErr     bool
	}{
		{
			name:        "consumer override wins",
			depName:     "geometry",
			dep:         Dependency{Path: "../g", Package: "geo"},
			depManifest: &Manifest{Project: Project{Name: "geometry2d"}},
			want:        "geo",
		},
		{
			name:        "producer name when no consumer override",
			depName:     "geometry",
			dep:         Dependency{Path: "../g"},
			depManifest: &Manifest{Project: Project{Name: "geometry2d"}},
			want:        "geometry2d",
		},
		{
			name:    "dependency key when no manifest",
			depName: "my-lib",
			dep:     Dependency{Path: "../my-lib"},
			want:    "my-lib",
		},
		{
			name:    "separators rejected",
			depName: "lib",
			dep:     Dependency{Path: "../lib", Package: "a/b"},
			wantErr: true,
		},
		{
			name:    "whitespace rejected",
			depName: "lib",
			dep:     Dependency{Path: "../lib", Package: "my lib"},
			wantErr: true,
		},
		{
			name:    "overlong name rejected",
			depName: "lib",
			dep:     Dependency{Path: "../lib", Package: strings.Repeat("x", 256)},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pkg, err := packageName(tc.depName, tc.dep, tc.depManifest)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got package %q", pkg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pkg != tc.want {
				t.Errorf("package = %q, want %q", pkg, tc.want)
			}
		})
	}
}

func TestResolvePathDependencies(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	writeManifest(t, app, `
[project]
name = "app"

[dependencies]
shapes = { path = "../shapes" }
`)
	writeManifest(t, filepath.Join(root, "shapes"), `
[project]
name = "shapes2d"

[dependencies]
base = { path = "../base" }
`)
	writeManifest(t, filepath.Join(root, "base"), `
[project]
name = "base"
`)

	m, err := Load(app)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	deps, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(deps) != 2 {
		t.Fatalf("resolved %d deps, want 2", len(deps))
	}
	if deps[0].Name != "base" || deps[1].Name != "shapes" {
		t.Errorf("order = %s, %s; want base, shapes", deps[0].Name, deps[1].Name)
	}
	if deps[1].Package != "shapes2d" {
		t.Errorf("shapes package = %q, want shapes2d", deps[1].Package)
	}

	lf, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}
	if locked := lf.FindLockedDep("base"); locked == nil || locked.Path != filepath.Join(root, "base") {
		t.Errorf("locked base = %v, want path %s", locked, filepath.Join(root, "base"))
	}
}

func TestResolveDuplicatePackage(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	writeManifest(t, app, `
[project]
name = "app"

[dependencies]
one = { path = "../one", package = "shared" }
two = { path = "../two", package = "shared" }
`)
	writeManifest(t, filepath.Join(root, "one"), "[project]\nname = \"one\"\n")
	writeManifest(t, filepath.Join(root, "two"), "[project]\nname = \"two\"\n")

	m, err := Load(app)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	_, err = NewResolver(m).Resolve()
	if err == nil || !strings.Contains(err.Error(), `both provide package "shared"`) {
		t.Errorf("Resolve error = %v, want a duplicate package error", err)
	}
}

func TestResolveMissingPath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "app"

[dependencies]
ghost = { path = "../does-not-exist" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Fatal("expected an error for a missing path dependency")
	}
}

func TestResolvedDepSourceFilesWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "model"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model", "lib.yaml"), []byte("packages: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rd := ResolvedDep{Name: "bare", LocalPath: dir}
	files, err := rd.SourceFiles()
	if err != nil {
		t.Fatalf("SourceFiles failed: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "lib.yaml" {
		t.Errorf("files = %v, want [lib.yaml]", files)
	}
}
