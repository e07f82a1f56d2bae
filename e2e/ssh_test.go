//go:build e2e

package e2e

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/fgeck/hostctl/internal/handshake"
	"github.com/fgeck/hostctl/internal/models"
	"github.com/fgeck/hostctl/internal/services/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getSSHConfig(t *testing.T) models.AppConfig {
	t.Helper()

	host := os.Getenv("TEST_SSH_HOST")
	if host == "" {
		t.Skip("TEST_SSH_HOST not set")
	}

	portStr := os.Getenv("TEST_SSH_PORT")
	if portStr == "" {
		portStr = "22"
	}
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	user := os.Getenv("TEST_SSH_USER")
	if user == "" {
		t.Skip("TEST_SSH_USER not set")
	}

	password := os.Getenv("TEST_SSH_PASSWORD")
	keyPath := os.Getenv("TEST_SSH_KEY_PATH")
	if password == "" && keyPath == "" {
		t.Skip("neither TEST_SSH_PASSWORD nor TEST_SSH_KEY_PATH set")
	}

	return models.AppConfig{
		Target: models.TargetConfig{
			Host:     host,
			OS:       models.OSLinux,
			Username: user,
			Password: password,
			SSH: models.SSHConfig{
				Port:                  port,
				KeyPath:               keyPath,
				KnownHostsPath:        os.Getenv("TEST_SSH_KNOWN_HOSTS"),
				InsecureIgnoreHostKey: os.Getenv("TEST_SSH_KNOWN_HOSTS") == "",
				Timeout:               10 * time.Second,
			},
		},
		Prompt: models.DefaultPromptConfig(),
		// Use a long delay for safety in tests.
		Power: models.PowerConfig{DelayMinutes: 60},
	}
}

func TestSSHTestConnection_E2E(t *testing.T) {
	cfg := getSSHConfig(t)

	svc := ssh.New(testLogger())

	result, err := svc.TestConnection(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "OK")
	assert.Nil(t, result.Error)
}

func TestSSHExecuteNonZeroExit_E2E(t *testing.T) {
	cfg := getSSHConfig(t)

	svc := ssh.New(testLogger())

	result, err := svc.Execute(context.Background(), cfg, models.CommandRequest{Command: "exit 3"})

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Equal(t, 3, result.ExitCode)
	assert.NotNil(t, result.Error)
}

func TestSSHConnectionFailed_E2E(t *testing.T) {
	cfg := models.AppConfig{
		Target: models.TargetConfig{
			Host:     "192.168.255.254", // Non-routable IP
			OS:       models.OSLinux,
			Username: "root",
			Password: "irrelevant",
			SSH: models.SSHConfig{
				Port:                  22,
				InsecureIgnoreHostKey: true,
				Timeout:               time.Minute,
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc := ssh.New(testLogger())

	result, err := svc.TestConnection(ctx, cfg)

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.NotNil(t, result.Error)
}

func TestSSHInvalidKey_E2E(t *testing.T) {
	cfg := models.AppConfig{
		Target: models.TargetConfig{
			Host:     "localhost",
			OS:       models.OSLinux,
			Username: "root",
			SSH: models.SSHConfig{
				Port:                  22,
				PrivateKey:            []byte("invalid key"),
				InsecureIgnoreHostKey: true,
				Timeout:               time.Second,
			},
		},
	}

	svc := ssh.New(testLogger())

	result, err := svc.TestConnection(context.Background(), cfg)

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "parse private key")
}

func TestSSHWrongSudoPassword_E2E(t *testing.T) {
	cfg := getSSHConfig(t)
	if cfg.Target.SSH.KeyPath == "" {
		t.Skip("TEST_SSH_KEY_PATH required to log in while sending a wrong sudo password")
	}
	cfg.Target.Password = "definitely-not-the-password"

	svc := ssh.New(testLogger())

	result, err := svc.Reboot(context.Background(), cfg)

	require.NoError(t, err)
	// Passwordless sudo never prompts.
	if result.Outcome == models.OutcomePromptTimeout {
		t.Skip("sudo did not prompt for a password")
	}
	assert.Equal(t, models.OutcomePasswordRejected, result.Outcome)
	assert.True(t, errors.Is(result.Error, handshake.ErrPasswordRejected))
}

// WARNING: This test will actually schedule a shutdown!
// Only run if you really want to test shutdown functionality.
func TestSSHShutdown_E2E(t *testing.T) {
	if os.Getenv("TEST_SSH_SHUTDOWN_ENABLED") != "true" {
		t.Skip("TEST_SSH_SHUTDOWN_ENABLED is not true - skipping actual shutdown test")
	}

	cfg := getSSHConfig(t)

	svc := ssh.New(testLogger())

	result, err := svc.Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, result.Outcome)
	assert.Nil(t, result.Error)

	// Cancel the scheduled shutdown again.
	_, _ = svc.Execute(context.Background(), cfg, models.CommandRequest{Command: "sudo -n shutdown -c"})
}
