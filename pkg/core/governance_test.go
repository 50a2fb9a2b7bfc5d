//go:build governance

package core_test

import (
	"go/types"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const modulePath = "github.com/leapstack-labs/leapnb"

// =============================================================================
// COHESION TEST - Core types must be shared by multiple packages
// =============================================================================

// TestGovernance_CoreCohesion verifies that types in pkg/core are genuinely
// shared across multiple packages. Single-use types should be moved to their
// sole consumer to maintain cohesion.
func TestGovernance_CoreCohesion(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedTypes |
			packages.NeedTypesInfo | packages.NeedDeps,
	}
	pkgs, err := packages.Load(cfg, modulePath+"/...")
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}

	coreDefs := make(map[types.Object]string)
	var corePkg *packages.Package

	for _, p := range pkgs {
		if p.PkgPath == modulePath+"/pkg/core" {
			corePkg = p
			scope := p.Types.Scope()
			for _, name := range scope.Names() {
				obj := scope.Lookup(name)
				if obj.Exported() {
					coreDefs[obj] = name
				}
			}
			break
		}
	}

	if corePkg == nil {
		t.Fatal("Could not find pkg/core")
	}

	// Count usages: CoreTypeName -> set of importing packages
	usageMap := make(map[string]map[string]bool)
	for _, name := range coreDefs {
		usageMap[name] = make(map[string]bool)
	}

	base := modulePath + "/"

	for _, p := range pkgs {
		if p.PkgPath == corePkg.PkgPath || strings.HasSuffix(p.PkgPath, "_test") {
			continue
		}
		if p.TypesInfo == nil {
			continue
		}

		for _, info := range p.TypesInfo.Uses {
			if name, exists := coreDefs[info]; exists {
				importer := strings.TrimPrefix(p.PkgPath, base)
				usageMap[name][importer] = true
			}
		}
	}

	for typeName, importers := range usageMap {
		if isCohesionAllowlisted(typeName) {
			continue
		}

		if len(importers) == 0 {
			t.Logf("WARNING: Unused Core Type: %s (consider deleting)", typeName)
		} else if len(importers) == 1 {
			var user string
			for k := range importers {
				user = k
			}
			t.Errorf("COHESION VIOLATION: 'core.%s' is used ONLY by '%s'.\n"+
				"   Fix: Move type from pkg/core to %s.",
				typeName, user, user)
		}
	}
}

// isCohesionAllowlisted returns true for types allowed to have single usage.
func isCohesionAllowlisted(name string) bool {
	allowlist := map[string]bool{
		"Adapter":       true, // Interface - implementations may be in one place
		"AdapterConfig": true, // Config struct for extension point
		"Rows":          true, // Query result handed from adapters to the SQL kernel
	}
	return allowlist[name]
}

// =============================================================================
// LAYERING TEST - Public packages never reach into internal ones
// =============================================================================

// TestGovernance_PkgDoesNotImportInternal ensures everything under pkg/ can be
// used by other modules: no package there may import the CLI, the config
// loader or the server.
func TestGovernance_PkgDoesNotImportInternal(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports,
	}
	pkgs, err := packages.Load(cfg, modulePath+"/pkg/...")
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}

	internalPrefix := modulePath + "/internal/"
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			continue
		}
		for path := range pkg.Imports {
			if strings.HasPrefix(path, internalPrefix) {
				t.Errorf("LAYERING VIOLATION: Package '%s' imports '%s'.\n"+
					"   Fix: Move the shared code into pkg/ or invert the dependency.",
					strings.TrimPrefix(pkg.PkgPath, modulePath+"/"), strings.TrimPrefix(path, modulePath+"/"))
			}
		}
	}
}

// TestGovernance_KernelsUseRegistry ensures kernels are reached through the
// kernel registry: only the config wiring, the server and tests may import a kernel
// package directly.
func TestGovernance_KernelsUseRegistry(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports,
	}
	pkgs, err := packages.Load(cfg, modulePath+"/...")
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}

	kernelsPrefix := modulePath + "/pkg/kernels/"
	allowed := map[string]bool{
		modulePath + "/internal/config":    true,
		modulePath + "/pkg/kernels/router": true, // composes starlark and sql
		modulePath + "/internal/server":    true, // speaks the remote kernel's wire format
	}

	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 || allowed[pkg.PkgPath] {
			continue
		}
		for path := range pkg.Imports {
			if strings.HasPrefix(path, kernelsPrefix) {
				t.Errorf("REGISTRY VIOLATION: Package '%s' imports kernel '%s' directly.\n"+
					"   Fix: Resolve the kernel with kernel.New.",
					strings.TrimPrefix(pkg.PkgPath, modulePath+"/"), strings.TrimPrefix(path, modulePath+"/"))
			}
		}
	}
}
