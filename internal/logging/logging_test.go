package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"dev":        slog.LevelDebug,
		"debug":      slog.LevelDebug,
		"info":       slog.LevelInfo,
		"WARN":       slog.LevelWarn,
		"prod":       slog.LevelError,
		"nonsense":   slog.LevelError,
		" warning  ": slog.LevelWarn,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestPionFactory(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	f := NewPionFactory(New(&buf, slog.LevelInfo))
	l := f.NewLogger("ice")

	l.Debugf("hidden %d", 1)
	req.Empty(buf.String())

	l.Warnf("candidate %s failed", "host")
	req.Contains(buf.String(), "candidate host failed")
	req.Contains(buf.String(), "pion=ice")
	req.Contains(buf.String(), "level=WARN")
}
