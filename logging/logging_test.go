package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := GetMode()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetMode(prev)
		SetOutput(os.Stdout)
	})

	return &buf
}

func TestModeFilter(t *testing.T) {
	buf := capture(t)
	SetMode(WarningMode)

	l := WithRank(3)
	l.Debugf("hidden %d", 1)
	l.Infof("hidden %d", 2)
	l.Warningf("shown %d", 3)
	Errorf("global %s", "error")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, " WARNING [rank 3] shown 3")
	require.Contains(t, out, " ERROR global error")

	buf.Reset()
	SetMode(SilentMode)
	Errorf("nothing")
	require.Empty(t, buf.String())
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{DebugMode, InfoMode, WarningMode, ErrorMode, SilentMode} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}

	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, InfoMode, m)

	_, err = ParseMode("loud")
	require.Error(t, err)
}

func TestConfig_Setup(t *testing.T) {
	prev := GetMode()
	t.Cleanup(func() {
		SetMode(prev)
		Shutdown()
	})

	logfile := filepath.Join(t.TempDir(), "hzvol.log")
	cfg := &Config{Logfile: logfile, MaxSize: 1, MaxAge: 1, Level: "debug"}
	require.NoError(t, cfg.Setup())
	require.Equal(t, DebugMode, GetMode())

	Default().Debugf("to file")
	Shutdown()

	data, err := os.ReadFile(logfile)
	require.NoError(t, err)
	require.Contains(t, string(data), " DEBUG to file")

	var nilCfg *Config
	require.NoError(t, nilCfg.Setup())
	require.Error(t, (&Config{Level: "loud"}).Setup())
}

func TestHumanize(t *testing.T) {
	require.Equal(t, "1.5 KiB", Bytes(1536))
	require.Equal(t, "-1.0 KiB", Bytes(int64(-1024)))
	require.Equal(t, "0 B", Bytes(uint64(0)))
	require.Equal(t, "1,234,567", Count(1234567))
}
