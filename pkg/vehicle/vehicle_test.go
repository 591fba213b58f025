package vehicle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"
)

var testFile = "\ufeffVEHICLE ID,LABEL\n" +
	"F-16C_50,Viper bl.50\n" +
	"MiG-29S, MiG-29 Fulcrum \n" +
	",ignored\n" +
	"\"F-5E-3\",\"F-5E, Tiger II\"\n"

func TestLookup(t *testing.T) {
	table := New(nil)
	require.Equal(t, "F-16CM bl.50", table.Lookup("F-16C_50"))
	require.Equal(t, "A10-C", table.Lookup("A-10C_2"))
	require.Equal(t, "UnknownJet", table.Lookup("UnknownJet"))
	// ids are case sensitive
	require.Equal(t, "f-16c_50", table.Lookup("f-16c_50"))
	require.Equal(t, "", table.Lookup(""))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.csv")
	require.NoError(t, os.WriteFile(path, []byte(testFile), 0o644))

	table, err := Load(log.NewNopLogger(), Config{File: path})
	require.NoError(t, err)
	require.Equal(t, "Viper bl.50", table.Lookup("F-16C_50"))
	require.Equal(t, "MiG-29 Fulcrum", table.Lookup("MiG-29S"))
	require.Equal(t, "F-5E, Tiger II", table.Lookup("F-5E-3"))
	require.Equal(t, "A10-C", table.Lookup("A-10C_2"))
	require.Equal(t, "ignored", table.Lookup("ignored"))
}

func TestLoad_NoFile(t *testing.T) {
	table, err := Load(log.NewNopLogger(), Config{})
	require.NoError(t, err)
	require.Equal(t, "F-16CM bl.50", table.Lookup("F-16C_50"))

	_, err = Load(log.NewNopLogger(), Config{File: filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, err)
}

func Test_parseLabels(t *testing.T) {
	m, err := parseLabels(strings.NewReader("VEHICLE ID,LABEL\nA,B\n"))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"A": "B"}, m)
}
