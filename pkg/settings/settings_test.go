package settings

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_Callsign(t *testing.T) {
	cfg := Config{Path: filepath.Join(t.TempDir(), "settings.db")}

	s, err := Open(cfg)
	require.NoError(t, err)

	c, err := s.Callsign()
	require.NoError(t, err)
	require.Equal(t, "", c)

	require.NoError(t, s.SetCallsign("Viper"))
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	c, err = s.Callsign()
	require.NoError(t, err)
	require.Equal(t, "Viper", c)

	require.NoError(t, s.SetCallsign(""))
	require.NoError(t, s.SetCallsign(""))
	c, err = s.Callsign()
	require.NoError(t, err)
	require.Equal(t, "", c)
	require.NoError(t, s.Close())
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(Config{Path: filepath.Join(t.TempDir(), "missing", "settings.db")})
	require.Error(t, err)
}

func TestConfig_DisabledByDefault(t *testing.T) {
	var cfg Config
	cfg.RegisterFlags(flag.NewFlagSet("test", flag.PanicOnError))
	require.Equal(t, "", cfg.Path)
}
