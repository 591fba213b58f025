package cfg

import (
	"flag"

	"github.com/slim-bean/dcs-presence/pkg/discord"
	"github.com/slim-bean/dcs-presence/pkg/hook"
	"github.com/slim-bean/dcs-presence/pkg/presence"
	"github.com/slim-bean/dcs-presence/pkg/server"
	"github.com/slim-bean/dcs-presence/pkg/settings"
	"github.com/slim-bean/dcs-presence/pkg/telemetry"
	"github.com/slim-bean/dcs-presence/pkg/ui"
	"github.com/slim-bean/dcs-presence/pkg/vehicle"
)

type Config struct {
	Telemetry telemetry.Config `yaml:"telemetry,omitempty"`
	Discord   discord.Config   `yaml:"discord,omitempty"`
	Presence  presence.Config  `yaml:"presence,omitempty"`
	Vehicles  vehicle.Config   `yaml:"vehicles,omitempty"`
	Settings  settings.Config  `yaml:"settings,omitempty"`
	Hook      hook.Config      `yaml:"hook,omitempty"`
	Server    server.Config    `yaml:"server,omitempty"`
	UI        ui.Config        `yaml:"ui,omitempty"`
	Log       LogConfig        `yaml:"log,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func (c *LogConfig) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.Level, "log.level", "info", "Only log messages with the given severity or above: debug, info, warn, error")
	f.StringVar(&c.File, "log.file", "", "Write logs to this file instead of stderr, defaults to dcs-presence.log while the status window is shown")
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.Telemetry.RegisterFlags(f)
	c.Discord.RegisterFlags(f)
	c.Presence.RegisterFlags(f)
	c.Vehicles.RegisterFlags(f)
	c.Settings.RegisterFlags(f)
	c.Hook.RegisterFlags(f)
	c.Server.RegisterFlags(f)
	c.UI.RegisterFlags(f)
	c.Log.RegisterFlags(f)
}
