// File: internal/platform/env.go
package platform

import (
	"os"
	"sort"
	"strings"
)

// MergeEnv builds the environment for a launch. Precedence, lowest first:
// inherited host environment, the app's configured Env, then per-launch
// Overrides. The result is sorted for deterministic logs and tests.
func MergeEnv(spec LaunchSpec) []string {
	merged := map[string]string{}
	if spec.InheritEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				merged[k] = v
			}
		}
	}
	for k, v := range spec.Env {
		merged[k] = v
	}
	for k, v := range spec.Overrides {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
