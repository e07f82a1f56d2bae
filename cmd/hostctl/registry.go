package main

import (
	"github.com/fgeck/hostctl/internal/models"
	"github.com/spf13/cobra"
)

var registryCmd = &cobra.Command{
	Use:   "registry <root> [subkey]",
	Short: "Query a registry key (windows only)",
	Long: `Run "reg query" on a Windows target. The root key may be given by its
full name (HKEY_LOCAL_MACHINE) or its short form (HKLM, HKCU, HKCR, HKU, HKCC).`,
	Example: `  hostctl registry -c win.yaml HKLM 'SOFTWARE\Microsoft\Windows NT\CurrentVersion'`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := models.ParseRegistryRootKey(args[0])
		if err != nil {
			return err
		}

		var subkey string
		if len(args) > 1 {
			subkey = args[1]
		}

		return runAction(cmd, models.Action{
			Kind:        models.ActionRegistry,
			RegistryKey: root,
			Subkey:      subkey,
		})
	},
}

var defenderCmd = &cobra.Command{
	Use:   "defender",
	Short: "Show Windows Defender preferences (windows only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, models.Action{Kind: models.ActionDefender})
	},
}
