package vehicle

import (
	"flag"
	"io"
	"os"
	"strings"

	"github.com/dimchansky/utfbom"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// builtin prettifies some of the module names reported by the simulator.
var builtin = map[string]string{
	"A-10C_2":       "A10-C",
	"F-16C_50":      "F-16CM bl.50",
	"FA-18C_hornet": "F/A-18C Hornet",
	"F-14B":         "F-14B Tomcat",
	"AV8BNA":        "AV-8B Harrier",
	"M-2000C":       "Mirage 2000C",
	"Ka-50_3":       "Ka-50 Black Shark 3",
	"AH-64D_BLK_II": "AH-64D Apache",
}

type Config struct {
	File string `yaml:"file"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.File, "vehicles.file", "", "Optional CSV file of extra vehicle labels with a VEHICLE ID,LABEL header")
}

// Label is one row of the vehicle labels file.
type Label struct {
	ID    string `csv:"VEHICLE ID"`
	Label string `csv:"LABEL"`
}

// Table maps raw simulator vehicle ids to display labels.
// It is never modified after it is built.
type Table struct {
	labels map[string]string
}

// New returns a Table of the builtin labels with overrides applied on top.
func New(overrides map[string]string) *Table {
	labels := make(map[string]string, len(builtin)+len(overrides))
	for id, l := range builtin {
		labels[id] = l
	}
	for id, l := range overrides {
		labels[id] = l
	}
	return &Table{labels: labels}
}

// Load builds a Table from the builtin labels plus the configured file, if any.
func Load(logger log.Logger, cfg Config) (*Table, error) {
	if cfg.File == "" {
		return New(nil), nil
	}
	f, err := os.Open(cfg.File)
	if err != nil {
		return nil, errors.Wrap(err, "opening vehicle labels file")
	}
	defer f.Close()

	overrides, err := parseLabels(utfbom.SkipOnly(f))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing vehicle labels file %s", cfg.File)
	}
	level.Info(logger).Log("msg", "loaded vehicle labels", "file", cfg.File, "count", len(overrides))
	return New(overrides), nil
}

func parseLabels(r io.Reader) (map[string]string, error) {
	rows := []*Label{}
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, err
	}
	m := make(map[string]string, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			continue
		}
		m[id] = strings.TrimSpace(row.Label)
	}
	return m, nil
}

// Lookup returns the label for id, or id unchanged when there is none.
func (t *Table) Lookup(id string) string {
	if l, ok := t.labels[id]; ok {
		return l
	}
	return id
}
