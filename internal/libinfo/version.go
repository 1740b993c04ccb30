/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo reports the version of the module, for the CLI and the metrics version label.
package libinfo

import (
	"maps"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const moduleName = "github.com/acronis/go-reqguard"

const unknownVersion = "v0.0.0"

// PrometheusLibVersionLabel is the label with the module version attached to all metrics.
const PrometheusLibVersionLabel = "go_reqguard_version"

// AddPrometheusLibVersionLabel returns a copy of the labels with the version label added.
func AddPrometheusLibVersionLabel(labels prometheus.Labels) prometheus.Labels {
	res := maps.Clone(labels)
	if res == nil {
		res = prometheus.Labels{}
	}
	res[PrometheusLibVersionLabel] = GetLibVersion()
	return res
}

// GetLibVersion returns the module version from the build info, or "v0.0.0" for development builds.
var GetLibVersion = sync.OnceValue(func() string {
	buildInfo, _ := debug.ReadBuildInfo()
	if v := moduleVersion(buildInfo, moduleName); v != "" {
		return v
	}
	return unknownVersion
})

// moduleVersion looks for the module (or its "/vN" major version) among the main module and the dependencies.
func moduleVersion(buildInfo *debug.BuildInfo, modPath string) string {
	if buildInfo == nil {
		return ""
	}
	if isModule(buildInfo.Main.Path, modPath) && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if isModule(dep.Path, modPath) {
			return dep.Version
		}
	}
	return ""
}

func isModule(path, modPath string) bool {
	if path == modPath {
		return true
	}
	major, ok := strings.CutPrefix(path, modPath+"/v")
	if !ok || major == "" {
		return false
	}
	return strings.Trim(major, "0123456789") == ""
}
