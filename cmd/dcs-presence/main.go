package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cortexproject/cortex/pkg/util/flagext"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	lokiconfig "github.com/grafana/loki/pkg/cfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"

	"github.com/slim-bean/dcs-presence/pkg/cfg"
	"github.com/slim-bean/dcs-presence/pkg/dcspresence"
	"github.com/slim-bean/dcs-presence/pkg/discord"
	"github.com/slim-bean/dcs-presence/pkg/hook"
	"github.com/slim-bean/dcs-presence/pkg/ui"
)

const defaultUILogFile = "dcs-presence.log"

type Config struct {
	cfg.Config   `yaml:",inline"`
	printVersion bool
	configFile   string
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.BoolVar(&c.printVersion, "version", false, "Print this builds version information")
	f.StringVar(&c.configFile, "config.file", "", "yaml file to load")
	c.Config.RegisterFlags(f)
}

// Clone takes advantage of pass-by-value semantics to return a distinct *Config.
// This is primarily used to parse a different flag set without mutating the original *Config.
func (c *Config) Clone() flagext.Registerer {
	return func(c Config) *Config {
		return &c
	}(*c)
}

func main() {

	var config Config

	if err := lokiconfig.Parse(&config); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if config.printVersion {
		fmt.Println(version.Print("dcs-presence"))
		os.Exit(0)
	}

	logger, closeLog, err := newLogger(&config.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}

	if config.Hook.Install {
		if _, err := hook.Ensure(log.With(logger, "component", "hook"), config.Hook, listenPort(config.Telemetry.ListenAddress)); err != nil {
			level.Error(logger).Log("msg", "failed to install simulator hook", "err", err)
		}
	}

	shutdown := make(chan struct{})
	go sig(logger, shutdown)

	pub := discord.New(logger, config.Discord)
	dp, err := dcspresence.New(logger, &config.Config, pub, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init the application: %v\n", err)
		os.Exit(1)
	}

	if config.UI.Enabled {
		p := tea.NewProgram(ui.New(dp.Board(), dp.SetCallsign))
		go func() {
			select {
			case <-shutdown:
			case <-dp.Done():
			}
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			level.Error(logger).Log("msg", "status window failed", "err", err)
		}
	} else {
		select {
		case <-shutdown:
		case <-dp.Done():
		}
	}

	code := 0
	if err := dp.Stop(); err != nil {
		level.Error(logger).Log("msg", "failed to close presence connection", "err", err)
		code = 1
	}
	level.Info(logger).Log("msg", "shutdown complete")
	closeLog()
	os.Exit(code)
}

func newLogger(c *cfg.Config) (log.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeLog := func() {}

	file := c.Log.File
	if file == "" && c.UI.Enabled {
		file = defaultUILogFile
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closeLog = func() { f.Close() }
	}

	var logger log.Logger
	logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, levelOption(c.Log.Level))
	logger = log.With(logger, "ts", log.DefaultTimestamp, "caller", log.DefaultCaller)
	return logger, closeLog, nil
}

func levelOption(l string) level.Option {
	switch l {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

// listenPort is the port the simulator hook has to send to.
func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 14242
	}
	port, err := strconv.Atoi(p)
	if err != nil || port == 0 {
		return 14242
	}
	return port
}

func sig(logger log.Logger, shutdown chan struct{}) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	buf := make([]byte, 1<<20)
	for {
		select {
		case sig := <-sigs:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				level.Info(logger).Log("msg", "=== received SIGINT/SIGTERM ===")
				close(shutdown)
				return
			case syscall.SIGQUIT:
				stacklen := runtime.Stack(buf, true)
				level.Info(logger).Log("msg", fmt.Sprintf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end", buf[:stacklen]))
			}
		}
	}
}
