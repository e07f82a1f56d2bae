package main

import (
	"fmt"
	"os"

	"github.com/fgeck/hostctl/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the configuration file and flags without connecting to the target.`,
	Args:  cobra.NoArgs,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Target:")
	fmt.Fprintf(out, "  Host: %s\n", cfg.Target.Host)
	fmt.Fprintf(out, "  OS: %s\n", cfg.Target.OS)
	fmt.Fprintf(out, "  User: %s\n", cfg.Target.Username)

	fmt.Fprintln(out)
	if cfg.Target.IsWindows() {
		fmt.Fprintln(out, "WinRM:")
		fmt.Fprintf(out, "  Endpoint: %s\n", cfg.Target.WinRM)
		fmt.Fprintf(out, "  Skip TLS verification: %v\n", cfg.Target.WinRM.Insecure)
		fmt.Fprintf(out, "  Timeout: %s\n", cfg.Target.WinRM.Timeout)
	} else {
		fmt.Fprintln(out, "SSH:")
		fmt.Fprintf(out, "  Port: %d\n", cfg.Target.SSH.Port)
		if cfg.Target.SSH.KeyPath != "" {
			fmt.Fprintf(out, "  Key: %s\n", cfg.Target.SSH.KeyPath)
		}
		if cfg.Target.SSH.InsecureIgnoreHostKey {
			fmt.Fprintln(out, "  Host key checking: disabled")
		} else {
			fmt.Fprintf(out, "  Known hosts: %s\n", cfg.Target.SSH.KnownHostsPath)
		}
		fmt.Fprintf(out, "  Timeout: %s\n", cfg.Target.SSH.Timeout)

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sudo prompt:")
		fmt.Fprintf(out, "  Poll interval: %s\n", cfg.Prompt.PollInterval)
		fmt.Fprintf(out, "  Prompt timeout: %s\n", cfg.Prompt.PromptTimeout)
		fmt.Fprintf(out, "  Password timeout: %s\n", cfg.Prompt.PasswordTimeout)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	fmt.Fprintf(out, "  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Fprintf(out, "  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.WOL != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "WOL Configuration:")
		fmt.Fprintf(out, "  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Fprintf(out, "  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
		if cfg.WOL.PollURL != "" {
			fmt.Fprintf(out, "  Poll URL: %s\n", cfg.WOL.PollURL)
		}
	}

	if cfg.Telegram != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Telegram Configuration:")
		fmt.Fprintf(out, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintln(out, "  Bot Token: (configured)")
	}

	return nil
}
