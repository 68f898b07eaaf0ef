package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: replykit-test\n")
	require.NoError(t, LoadFromFile(path))

	c := Get()
	require.NotNil(t, c)
	require.Equal(t, "replykit-test", c.App.Name)
	require.Equal(t, 2*time.Minute, c.Polling.Interval)
	require.Equal(t, 30*time.Second, c.Polling.MisfireGrace)
	require.Equal(t, 8002, c.Server.Port)
	require.Equal(t, "gpt-4", c.AI.Model)
	require.Equal(t, "professional", c.Voice.Tone)
}

func TestLoadFromFileAccounts(t *testing.T) {
	path := writeConfig(t, `
polling:
  interval: 5m
  misfire_grace: 45s
accounts:
  - email: support@example.com
    password: secret
    display_name: Support
    service_tag: Customer Support
    inbound_type: imaps
    inbound_host: imappro.zoho.com
    inbound_port: 993
    outbound_host: smtppro.zoho.com
    outbound_port: 465
    outbound_tls: true
    dkim_selector: zoho
  - email: sales@example.com
    password: secret2
    inbound_type: pop3s
    inbound_host: pop.example.com
    outbound_host: smtp.example.com
`)
	require.NoError(t, LoadFromFile(path))

	c := Get()
	require.Len(t, c.Accounts, 2)
	require.Equal(t, "support@example.com", c.Accounts[0].Email)
	require.Equal(t, "imaps", c.Accounts[0].InboundType)
	require.Equal(t, 993, c.Accounts[0].InboundPort)
	require.True(t, c.Accounts[0].OutboundTLS)
	require.Equal(t, "pop3s", c.Accounts[1].InboundType)
	require.Equal(t, 5*time.Minute, c.Polling.Interval)
	require.Equal(t, 45*time.Second, c.Polling.MisfireGrace)
}

func TestLoadFromFileMissingFile(t *testing.T) {
	require.Error(t, LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")))
}
