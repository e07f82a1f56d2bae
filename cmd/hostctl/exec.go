package main

import (
	"strings"

	"github.com/fgeck/hostctl/internal/models"
	"github.com/spf13/cobra"
)

var (
	execPowerShell bool
	execWake       bool
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Run a command on the target",
	Long: `Run a non-interactive command on the target and print its output.
On Windows targets the command runs under cmd.exe unless --powershell is set.`,
	Example: `  hostctl exec --host 10.0.0.5 -u admin -- uptime
  hostctl exec -c win.yaml --powershell -- Get-Service WinRM`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, models.Action{
			Kind: models.ActionExec,
			Command: models.CommandRequest{
				Command:    strings.Join(args, " "),
				PowerShell: execPowerShell,
			},
			Wake: execWake,
		})
	},
}

func init() {
	execCmd.Flags().BoolVar(&execPowerShell, "powershell", false, "run the command through PowerShell (windows only)")
	execCmd.Flags().BoolVar(&execWake, "wake", false, "send Wake-on-LAN and wait for the target first")
}
