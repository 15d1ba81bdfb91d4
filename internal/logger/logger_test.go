package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Writer: &buf, Level: WARN})
	require.NoError(t, err)

	l.Info("BOOKING", "hidden")
	l.Warn("booking", "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "[BOOKING")
	assert.Contains(t, out, "logger_test.go")
}

func TestLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Service: "test", Dir: dir, Writer: &bytes.Buffer{}, Level: DEBUG})
	require.NoError(t, err)

	l.LogBooking("CREATE", "TKT-AB12CD", "2 seats held")
	l.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "test-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()

	var entries []LogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NotEmpty(t, entries)

	var found bool
	for _, e := range entries {
		if e.Category == "BOOKING" {
			found = true
			assert.Equal(t, "INFO", e.Level)
			assert.Equal(t, "[CREATE] TKT-AB12CD - 2 seats held", e.Message)
		}
	}
	assert.True(t, found)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}
