package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	log, done, err := New("production", dir)
	require.NoError(t, err)
	log.Info("hello from test")
	done()

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.NotContains(t, string(data), "\x1b[", "file output is not colored")
}

func TestNewWithoutDir(t *testing.T) {
	log, done, err := New("development", "")
	require.NoError(t, err)
	require.NotNil(t, log)
	done()
}

func TestDailyFileRotates(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 19, 23, 59, 0, 0, time.UTC)
	f, err := newDailyFile(dir, func() time.Time { return now })
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("first\n"))
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = f.Write([]byte("second\n"))
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(dir, "2026-10-19.log"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "2026-10-20.log"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(first))
	assert.Equal(t, "second\n", string(second))
}

func TestIsValidLogPath(t *testing.T) {
	assert.True(t, isValidLogPath("logs", filepath.Join("logs", "2026-10-19.log")))
	assert.False(t, isValidLogPath("logs", filepath.Join("logs", "..", "etc", "passwd")))
	assert.False(t, isValidLogPath("logs", "logs-other/x.log"))
}
