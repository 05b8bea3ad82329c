package gpu

import (
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
)

// Exported entry points a channel module must provide.
const (
	symRunDouble   = "gpubridge_run_double"
	symRunFloat    = "gpubridge_run_float"
	symQueryDouble = "gpubridge_query_double"
	symQueryFloat  = "gpubridge_query_float"
	symFreeResult  = "gpubridge_free_result"
	symStatusText  = "gpubridge_status_text"
)

var requiredSymbols = []string{symRunDouble, symRunFloat, symQueryDouble, symQueryFloat, symFreeResult, symStatusText}

// ModuleLoader locates and opens the native channel module. Versions are
// tried in order, each against every search path; an empty search path list
// leaves the lookup to the dynamic loader.
type ModuleLoader struct {
	Module      string
	Versions    []string
	SearchPaths []string
	Log         *zap.Logger
}

// Candidates returns the library paths Load tries, in order.
func (l ModuleLoader) Candidates() []string {
	versions := l.Versions
	if len(versions) == 0 {
		versions = []string{""}
	}
	var out []string
	for _, v := range versions {
		name := libraryName(runtime.GOOS, l.Module, v)
		if len(l.SearchPaths) == 0 {
			out = append(out, name)
			continue
		}
		for _, dir := range l.SearchPaths {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}

func libraryName(goos, module, version string) string {
	switch goos {
	case "darwin":
		if version == "" {
			return "lib" + module + ".dylib"
		}
		return "lib" + module + "." + version + ".dylib"
	case "windows":
		if version == "" {
			return module + ".dll"
		}
		return module + version + ".dll"
	default:
		if version == "" {
			return "lib" + module + ".so"
		}
		return "lib" + module + ".so." + version
	}
}

func (l ModuleLoader) logger() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log.Named("loader")
}
