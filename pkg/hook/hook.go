// Package hook installs the Lua export hook that makes the simulator send
// telemetry to the listener.
package hook

import (
	_ "embed"
	"flag"
	"os"
	"path/filepath"
	"strconv"

	"github.com/drone/envsubst"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// FileName is the name of the hook inside the simulator's hooks directory.
const FileName = "dcs-rich-presence-hook.lua"

//go:embed dcs-rich-presence-hook.lua
var hookTemplate string

type Config struct {
	Install bool   `yaml:"install"`
	Dir     string `yaml:"dir"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Install, "hook.install", true, "Install the simulator export hook on startup if it is missing")
	f.StringVar(&c.Dir, "hook.dir", defaultDir(), "Simulator hooks directory")
}

func defaultDir() string {
	profile := os.Getenv("USERPROFILE")
	if profile == "" {
		return ""
	}
	return filepath.Join(profile, "Saved Games", "DCS", "Scripts", "Hooks")
}

// Render returns the hook source sending telemetry to port.
func Render(port int) (string, error) {
	return envsubst.Eval(hookTemplate, func(name string) string {
		if name == "DCS_PRESENCE_PORT" {
			return strconv.Itoa(port)
		}
		return ""
	})
}

// Ensure writes the hook into cfg.Dir unless a file is already there.
// Existing hooks are never overwritten. It reports whether it wrote the file.
func Ensure(logger log.Logger, cfg Config, port int) (bool, error) {
	if cfg.Dir == "" {
		return false, errors.New("no hooks directory configured, set -hook.dir")
	}
	path := filepath.Join(cfg.Dir, FileName)

	if _, err := os.Stat(path); err == nil {
		level.Info(logger).Log("msg", "simulator hook already exists", "path", path)
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, errors.Wrap(err, "checking for simulator hook")
	}

	src, err := Render(port)
	if err != nil {
		return false, errors.Wrap(err, "rendering simulator hook")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return false, errors.Wrap(err, "creating hooks directory")
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		return false, errors.Wrap(err, "writing simulator hook")
	}
	level.Info(logger).Log("msg", "installed simulator hook", "path", path)
	return true, nil
}
