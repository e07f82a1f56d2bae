package models

import "fmt"

// Linux power commands. Tested against Ubuntu; other distributions may
// word the sudo prompt differently.
const (
	LinuxReboot   = "sudo reboot"
	LinuxShutdown = "sudo shutdown -h now"
)

// Windows commands.
const (
	WindowsReboot        = "shutdown /r"
	WindowsShutdown      = "shutdown /s"
	WindowsRegistryQuery = "reg query"
	WindowsDefenderPrefs = "Get-MpPreference"
)

// PowerAction is either a reboot or a shutdown.
type PowerAction string

// Power actions.
const (
	PowerReboot   PowerAction = "reboot"
	PowerShutdown PowerAction = "shutdown"
)

// PowerConfig holds reboot/shutdown options.
type PowerConfig struct {
	Immediate    bool // windows: skip the default grace period
	DelayMinutes int  `validate:"min=0"`
}

// LinuxCommand builds the sudo command for the action.
func (c PowerConfig) LinuxCommand(action PowerAction) string {
	if c.DelayMinutes > 0 {
		flag := "-h"
		if action == PowerReboot {
			flag = "-r"
		}
		return fmt.Sprintf("sudo shutdown %s +%d", flag, c.DelayMinutes)
	}
	if action == PowerReboot {
		return LinuxReboot
	}
	return LinuxShutdown
}

// WindowsCommand builds the shutdown.exe command for the action.
func (c PowerConfig) WindowsCommand(action PowerAction) string {
	cmd := WindowsShutdown
	if action == PowerReboot {
		cmd = WindowsReboot
	}
	switch {
	case c.Immediate:
		cmd += " /t 0"
	case c.DelayMinutes > 0:
		cmd += fmt.Sprintf(" /t %d", c.DelayMinutes*60)
	}
	return cmd
}
