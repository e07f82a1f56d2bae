package main

import (
	"github.com/fgeck/hostctl/internal/models"
	"github.com/spf13/cobra"
)

var rebootWake bool

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot the target",
	Long: `Reboot the target. On Linux the command runs through sudo and the
password prompt is answered with the login password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, models.Action{Kind: models.ActionReboot, Wake: rebootWake})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut the target down",
	Long: `Power off the target. On Linux the command runs through sudo and the
password prompt is answered with the login password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, models.Action{Kind: models.ActionShutdown})
	},
}

func addPowerFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("immediate", false, "skip the grace period (windows: /t 0)")
	cmd.Flags().Int("delay", 0, "delay in minutes before the action")
}

func init() {
	addPowerFlags(rebootCmd)
	addPowerFlags(shutdownCmd)
	rebootCmd.Flags().BoolVar(&rebootWake, "wake", false, "send Wake-on-LAN and wait for the target first")
}
