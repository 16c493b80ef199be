package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Setenv("USER_ID", "12345678")
	t.Setenv("PASSWORD", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BaseURL, cfg.BaseURL)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 120*time.Second, cfg.BrowserTimeout)
	assert.Equal(t, 5*time.Minute, cfg.LoginRetryInterval)
	assert.Equal(t, 0, cfg.LoginMaxAttempts)
	assert.Equal(t, 2, cfg.Headcount)
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoadOverrides(t *testing.T) {
	setCredentials(t)
	t.Setenv("HEADLESS", "false")
	t.Setenv("LOGIN_RETRY_INTERVAL", "30s")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("HEADCOUNT", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Headless)
	assert.Equal(t, 30*time.Second, cfg.LoginRetryInterval)
	assert.Equal(t, 3, cfg.LoginMaxAttempts)
	assert.Equal(t, 4, cfg.Headcount)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing credentials", map[string]string{"USER_ID": "", "PASSWORD": ""}},
		{"bad duration", map[string]string{"POLL_INTERVAL": "soon"}},
		{"bad int", map[string]string{"HEADCOUNT": "two"}},
		{"negative attempts", map[string]string{"LOGIN_MAX_ATTEMPTS": "-1"}},
		{"zero headcount", map[string]string{"HEADCOUNT": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCredentials(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetTargets(t *testing.T) {
	all := GetTargets(false)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Priority, all[i].Priority)
	}

	test := GetTargets(true)
	require.Len(t, test, 1)
	assert.Equal(t, "1040", test[0].ID)
}
