// Package platform identifies the device the logs were captured on.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/pmtrace/perflog/pkg/source"
)

// Kind is the platform family.
type Kind string

const (
	KindWebOS Kind = "webos"
	KindVC    Kind = "vc"
	KindLocal Kind = "local"
)

// Info describes the target device.
type Info struct {
	Kind      Kind   `json:"-"`
	HWName    string `json:"HWName"`
	OSName    string `json:"OSName"`
	BuildInfo string `json:"BuildInfo"`
	CodeName  string `json:"CodeName"`
	ModelName string `json:"ModelName"`
}

// String returns a one-line summary.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (build %s, %s, %s)", i.HWName, i.OSName, i.BuildInfo, i.CodeName, i.ModelName)
}

// UsesJournal reports whether the device logs performance events to the
// systemd journal rather than pmlog files.
func (i Info) UsesJournal() bool {
	return strings.Contains(strings.ToLower(i.HWName), "sabreauto")
}

// nyx-cmd query keys merged into Info on webOS.
var webOSQueries = []string{"OSInfo", "DeviceInfo"}

// Detect queries the device behind runner. A device without nyx-cmd is
// treated as a VC platform.
func Detect(ctx context.Context, runner source.CommandRunner) (Info, error) {
	if _, err := runner.Run(ctx, []string{"which", "nyx-cmd", ">", "/dev/null", "2>&1"}, true); err != nil {
		if ctx.Err() != nil {
			return Info{}, ctx.Err()
		}
		return detectVC(ctx, runner)
	}
	return detectWebOS(ctx, runner)
}

func detectWebOS(ctx context.Context, runner source.CommandRunner) (Info, error) {
	props := make(map[string]any)
	for _, q := range webOSQueries {
		out, err := runner.Run(ctx, []string{"nyx-cmd", q, "query", "--format=json", "2>/dev/null"}, true)
		if err != nil {
			return Info{}, fmt.Errorf("querying %s: %w", q, err)
		}
		if err := json.Unmarshal([]byte(out), &props); err != nil {
			return Info{}, fmt.Errorf("decoding %s: %w", q, err)
		}
	}

	return Info{
		Kind:      KindWebOS,
		HWName:    prop(props, "device_name"),
		OSName:    prop(props, "webos_name"),
		BuildInfo: prop(props, "webos_build_id"),
		CodeName:  prop(props, "webos_release_codename"),
		ModelName: prop(props, "webos_imagename"),
	}, nil
}

func detectVC(ctx context.Context, runner source.CommandRunner) (Info, error) {
	info := Info{Kind: KindVC}

	out, err := runner.Run(ctx, []string{"uname", "-a"}, false)
	if err != nil {
		return Info{}, fmt.Errorf("querying uname: %w", err)
	}
	if f := strings.Fields(out); len(f) >= 2 {
		info.OSName = f[0]
		info.HWName = f[1]
	}

	out, err = runner.Run(ctx, []string{"cat", "/etc/os-release"}, false)
	if err != nil {
		return Info{}, fmt.Errorf("reading os-release: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		key, value, _ := strings.Cut(line, "=")
		value = strings.TrimSpace(strings.Trim(value, `"`))
		switch strings.TrimSpace(key) {
		case "ID":
			info.ModelName = value
		case "VERSION_ID":
			info.BuildInfo = value
		case "PRETTY_NAME":
			info.CodeName = value
		}
	}

	return info, nil
}

// Local describes this machine without running any command. It is used
// when only saved log files are analyzed.
func Local() Info {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return Info{
		Kind:   KindLocal,
		HWName: host,
		OSName: runtime.GOOS,
	}
}

func prop(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
