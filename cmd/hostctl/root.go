package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "hostctl",
	Short: "Run commands on and power-cycle remote Linux and Windows hosts",
	Long: `hostctl connects to a remote host over SSH (Linux) or WinRM (Windows) and:
  - executes commands (cmd or PowerShell on Windows)
  - reboots or shuts the host down, answering the sudo prompt on Linux
  - queries registry keys and Windows Defender preferences (Windows only)

Connection settings come from a YAML config file and/or command line flags.
Optional Wake-on-LAN and Telegram notifications are configured in the file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (optional when --host is given)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.PersistentFlags().String("host", "", "target IP address or hostname")
	rootCmd.PersistentFlags().String("os", "", "target operating system (linux or windows)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "login user")
	rootCmd.PersistentFlags().StringP("password", "p", "", "login password (prompted when omitted)")
	rootCmd.PersistentFlags().Int("port", 0, "SSH or WinRM port (default 22 / 5985)")
	rootCmd.PersistentFlags().Bool("insecure", false, "skip host key or TLS certificate verification")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(defenderCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(validateCmd)
}

// setupLogging writes logs to stderr so command output on stdout stays clean.
func setupLogging() {
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
