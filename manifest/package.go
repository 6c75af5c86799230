package manifest

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// packageName determines the package a dependency provides:
//  1. Consumer override (dep.Package from TOML)
//  2. Producer manifest (depManifest.Project.Name)
//  3. The dependency key
func packageName(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var pkg string
	switch {
	case dep.Package != "":
		pkg = dep.Package
	case depManifest != nil && depManifest.Project.Name != "":
		pkg = depManifest.Project.Name
	default:
		pkg = name
	}

	if err := ValidatePackageName(pkg); err != nil {
		return "", fmt.Errorf("dependency %q: %w; add package = \"...\" override in [dependencies]", name, err)
	}
	return pkg, nil
}

// ValidatePackageName checks that a package name can be linked by the
// runtime: 1 to 255 bytes, no whitespace, no path separators.
func ValidatePackageName(pkg string) error {
	if pkg == "" {
		return fmt.Errorf("package name is empty")
	}
	if len(pkg) > math.MaxUint8 {
		return fmt.Errorf("package name %q is longer than %d bytes", pkg, math.MaxUint8)
	}
	if strings.ContainsAny(pkg, `/\`) || strings.IndexFunc(pkg, unicode.IsSpace) >= 0 {
		return fmt.Errorf("package name %q contains a separator or whitespace", pkg)
	}
	return nil
}
