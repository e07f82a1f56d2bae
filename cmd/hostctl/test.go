package main

import (
	"github.com/fgeck/hostctl/internal/models"
	"github.com/spf13/cobra"
)

var testWake bool

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that the target accepts a login",
	Long:  `Log in and run a harmless echo to verify connectivity and credentials.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, models.Action{Kind: models.ActionTest, Wake: testWake})
	},
}

func init() {
	testCmd.Flags().BoolVar(&testWake, "wake", false, "send Wake-on-LAN and wait for the target first")
}
