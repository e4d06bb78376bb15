package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir, "ticket-admission")
	l.out = log.New(&bytes.Buffer{}, "", 0)

	l.LogPurchase("ADMITTED", 7, 42, "2 ticket(s)")
	l.Close()

	name := filepath.Join(dir, "ticket-admission-"+time.Now().Format("2006-01-02")+".log")
	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}

	var purchase *LogEntry
	for i := range entries {
		if entries[i].Category == "PURCHASE" {
			purchase = &entries[i]
		}
	}
	require.NotNil(t, purchase)
	assert.Equal(t, "INFO", purchase.Level)
	assert.Equal(t, "[ADMITTED] event=7 buyer=42 - 2 ticket(s)", purchase.Message)
}

func TestTestLoggerDropsBelowWarn(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger()
	l.out = log.New(&buf, "", 0)

	l.Info("APP", "hidden")
	l.LogSecurity("INVALID_TOKEN", "bad signature")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN  [SECURITY  ] [INVALID_TOKEN] bad signature")
}

func TestLogDatabaseFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger()
	l.minLevel = INFO
	l.out = log.New(&buf, "", 0)

	l.LogDatabase("CONNECT", "postgres", "max_open=25")

	assert.Contains(t, buf.String(), "INFO  [DATABASE  ] [CONNECT] postgres - max_open=25")
}
