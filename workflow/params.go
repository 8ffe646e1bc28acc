package workflow

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DeviceIDParam is a template variable that is always defined during
// parameter resolution.
const DeviceIDParam = "device_id"

// ErrUnresolvedParam occurs when a parameter references a template
// variable that has no value and no default.
var ErrUnresolvedParam = errors.New("unresolved parameter")

// ParamResolvers turn action parameter templates into the concrete
// parameters for a single device.
type ParamResolver interface {
	// Resolve returns the parameters for the device id.
	Resolve(id string, params map[string]string) (map[string]string, error)
}

// TemplateResolver is a ParamResolver performing shell-style ${var}
// expansion. Per-device values override the common values and the
// DeviceIDParam variable is always defined.
type TemplateResolver struct {
	// Common variables shared by every device.
	Common map[string]string

	// Device variables keyed by device ID; override Common.
	Device map[string]map[string]string
}

// Resolve expands every parameter value for the device id.
// Referencing an undefined variable with no default is an error.
func (r *TemplateResolver) Resolve(id string, params map[string]string) (map[string]string, error) {
	vars := map[string]string{DeviceIDParam: id}
	if r != nil {
		for k, v := range r.Common {
			vars[k] = v
		}
		for k, v := range r.Device[id] {
			vars[k] = v
		}
	}

	resolved := make(map[string]string, len(params))
	missing := make(map[string]struct{})
	for k, v := range params {
		resolved[k] = expandParams(v, vars, missing)
	}

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return resolved, fmt.Errorf("%w: %s", ErrUnresolvedParam, strings.Join(names, ", "))
	}
	return resolved, nil
}

// expandParams perform shell-like ${var} expansion on s and replaces values from p.
// An optional colon-separated "default" value can be provided as well.
// Variables that have no value and no default are collected in missing.
func expandParams(s string, p map[string]string, missing map[string]struct{}) string {
	return os.Expand(s, func(v string) string {
		vs := strings.SplitN(v, ":", 2)
		r, ok := p[vs[0]]
		if !ok {
			if len(vs) > 1 {
				return vs[1]
			}
			missing[vs[0]] = struct{}{}
		}
		return r
	})
}
