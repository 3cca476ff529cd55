package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l := NewIsolatedLogger(path)

	l.Debug("TURN", "dropped below info", nil)
	l.Warn("TURN", "Transient agent failure, retrying", map[string]interface{}{
		"session_id": "s-1",
		"attempt":    1,
	})
	require.NoError(t, l.Sync())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}

	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "TURN", lines[0]["module"])
	assert.Equal(t, "Transient agent failure, retrying", lines[0]["message"])

	details, ok := lines[0]["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "s-1", details["session_id"])
}

func TestNopLoggerAcceptsNilDetails(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Info("X", "msg", nil)
		l.Error("X", "msg", map[string]interface{}{"error": "boom"})
	})
	assert.NoError(t, l.Sync())
}
