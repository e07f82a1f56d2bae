package main

import (
	"testing"

	"github.com/fgeck/hostctl/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNeedsPassword(t *testing.T) {
	tests := []struct {
		name     string
		os       string
		password string
		keyPath  string
		kind     models.ActionKind
		expected bool
	}{
		{name: "password already set", os: models.OSLinux, password: "secret", kind: models.ActionReboot, expected: false},
		{name: "windows without password", os: models.OSWindows, kind: models.ActionExec, expected: true},
		{name: "windows with password", os: models.OSWindows, password: "secret", kind: models.ActionShutdown, expected: false},
		{name: "linux exec without credentials", os: models.OSLinux, kind: models.ActionExec, expected: true},
		{name: "linux exec with key", os: models.OSLinux, keyPath: "/home/admin/.ssh/id_ed25519", kind: models.ActionExec, expected: false},
		{name: "linux test with key", os: models.OSLinux, keyPath: "/home/admin/.ssh/id_ed25519", kind: models.ActionTest, expected: false},
		{name: "linux reboot with key needs sudo password", os: models.OSLinux, keyPath: "/home/admin/.ssh/id_ed25519", kind: models.ActionReboot, expected: true},
		{name: "linux shutdown with key needs sudo password", os: models.OSLinux, keyPath: "/home/admin/.ssh/id_ed25519", kind: models.ActionShutdown, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &models.AppConfig{
				Target: models.TargetConfig{
					Host:     "192.168.1.20",
					OS:       tt.os,
					Username: "admin",
					Password: tt.password,
					SSH:      models.SSHConfig{KeyPath: tt.keyPath},
				},
			}

			assert.Equal(t, tt.expected, needsPassword(cfg, models.Action{Kind: tt.kind}))
		})
	}
}

func TestIsPowerAction(t *testing.T) {
	assert.True(t, isPowerAction(models.ActionReboot))
	assert.True(t, isPowerAction(models.ActionShutdown))
	assert.False(t, isPowerAction(models.ActionExec))
	assert.False(t, isPowerAction(models.ActionRegistry))
}
