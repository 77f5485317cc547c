// modules.go reports the module versions the binary was built with.

package raven

import (
	"maps"
	"runtime/debug"
	"sync"
)

var (
	modulesOnce  sync.Once
	modulesCache map[string]string
)

// buildModules returns the main module and its dependencies with their
// versions, read once from the build info. Replaced modules report the
// replacement's version.
func buildModules() map[string]string {
	modulesOnce.Do(func() {
		modulesCache = modulesFrom(debug.ReadBuildInfo())
	})
	return maps.Clone(modulesCache)
}

func modulesFrom(info *debug.BuildInfo, ok bool) map[string]string {
	out := map[string]string{}
	if !ok || info == nil {
		return out
	}
	if info.Main.Path != "" {
		out[info.Main.Path] = info.Main.Version
	}
	for _, dep := range info.Deps {
		mod := dep
		if dep.Replace != nil {
			mod = dep.Replace
		}
		out[dep.Path] = mod.Version
	}
	return out
}
