//go:build !linux && !darwin

package gpu

import "github.com/pkg/errors"

// Load reports the module as missing; dynamic loading is only wired up on
// linux and darwin.
func (l ModuleLoader) Load() (Channel, error) {
	return nil, &LoadError{
		Kind:   ErrModuleNotFound,
		Module: l.Module,
		Tried:  l.Candidates(),
		Err:    errors.New("dynamic loading is not supported on this platform"),
	}
}
