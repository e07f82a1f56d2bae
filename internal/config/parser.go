// Package config provides configuration file parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/hostctl/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default connection settings.
const (
	DefaultSSHPort        = 22
	DefaultWinRMPort      = 5985
	DefaultWinRMHTTPSPort = 5986
	DefaultTimeout        = 60 * time.Second
)

// flagKeys maps config keys to the CLI flags that may override them.
var flagKeys = map[string]string{
	"target.host":         "host",
	"target.os":           "os",
	"target.username":     "user",
	"target.password":     "password",
	"target.port":         "port",
	"target.insecure":     "insecure",
	"power.immediate":     "immediate",
	"power.delay_minutes": "delay",
}

// Parser handles configuration file parsing.
type Parser struct {
	v     *viper.Viper
	flags *pflag.FlagSet
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// BindFlags lets command line flags override values from the config file.
// Flags that are not defined on fs are skipped.
func (p *Parser) BindFlags(fs *pflag.FlagSet) error {
	p.flags = fs
	for key, name := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := p.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load loads configuration from path. An empty path builds the
// configuration from flags alone.
func (p *Parser) Load(path string) (*models.AppConfig, error) {
	if path == "" {
		return p.parse()
	}
	return p.LoadFile(path)
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.AppConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.AppConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.AppConfig, error) {
	cfg := &models.AppConfig{}

	cfg.Target = models.TargetConfig{
		Host:     p.v.GetString("target.host"),
		OS:       strings.ToLower(p.v.GetString("target.os")),
		Username: p.getExpanded("target.username"),
		Password: p.getExpanded("target.password"),
	}
	if cfg.Target.OS == "" {
		cfg.Target.OS = models.OSLinux
	}

	cfg.Target.SSH = models.SSHConfig{
		Port:                  p.v.GetInt("ssh.port"),
		KeyPath:               p.expandEnv(p.v.GetString("ssh.key_path")),
		KnownHostsPath:        p.expandEnv(p.v.GetString("ssh.known_hosts")),
		InsecureIgnoreHostKey: p.v.GetBool("ssh.insecure_ignore_host_key"),
		Timeout:               p.v.GetDuration("ssh.timeout"),
	}
	if cfg.Target.SSH.Port == 0 {
		cfg.Target.SSH.Port = DefaultSSHPort
	}
	if cfg.Target.SSH.Timeout == 0 {
		cfg.Target.SSH.Timeout = DefaultTimeout
	}
	if cfg.Target.SSH.KnownHostsPath == "" {
		cfg.Target.SSH.KnownHostsPath = defaultKnownHosts()
	}

	cfg.Target.WinRM = models.WinRMConfig{
		Port:     p.v.GetInt("winrm.port"),
		HTTPS:    p.v.GetBool("winrm.https"),
		Insecure: p.v.GetBool("winrm.insecure"),
		Timeout:  p.v.GetDuration("winrm.timeout"),
	}
	if cfg.Target.WinRM.Port == 0 {
		cfg.Target.WinRM.Port = DefaultWinRMPort
		if cfg.Target.WinRM.HTTPS {
			cfg.Target.WinRM.Port = DefaultWinRMHTTPSPort
		}
	}
	if cfg.Target.WinRM.Timeout == 0 {
		cfg.Target.WinRM.Timeout = DefaultTimeout
	}

	// --port and --insecure apply to whichever transport the target uses.
	if port := p.v.GetInt("target.port"); port != 0 {
		if cfg.Target.IsWindows() {
			cfg.Target.WinRM.Port = port
		} else {
			cfg.Target.SSH.Port = port
		}
	}
	if p.v.GetBool("target.insecure") {
		cfg.Target.SSH.InsecureIgnoreHostKey = true
		cfg.Target.WinRM.Insecure = true
	}

	cfg.Prompt = models.DefaultPromptConfig()
	if p.v.IsSet("prompt.poll_interval") {
		cfg.Prompt.PollInterval = p.v.GetDuration("prompt.poll_interval")
	}
	if p.v.IsSet("prompt.prompt_timeout") {
		cfg.Prompt.PromptTimeout = p.v.GetDuration("prompt.prompt_timeout")
	}
	if p.v.IsSet("prompt.password_timeout") {
		cfg.Prompt.PasswordTimeout = p.v.GetDuration("prompt.password_timeout")
	}
	if p.v.IsSet("prompt.max_read_bytes") {
		cfg.Prompt.MaxReadBytes = p.v.GetInt("prompt.max_read_bytes")
	}

	cfg.Power = models.PowerConfig{
		Immediate:    p.v.GetBool("power.immediate"),
		DelayMinutes: p.v.GetInt("power.delay_minutes"),
	}

	// Parse optional WOL config.
	if p.v.IsSet("wol") { //nolint:nestif // config parsing with defaults
		cfg.WOL = &models.WOLConfig{
			MACAddress:    p.v.GetString("wol.mac_address"),
			BroadcastIP:   p.v.GetString("wol.broadcast_ip"),
			PollURL:       p.v.GetString("wol.poll_url"),
			Timeout:       p.v.GetDuration("wol.timeout"),
			PollInterval:  p.v.GetDuration("wol.poll_interval"),
			StabilizeWait: p.v.GetDuration("wol.stabilize_wait"),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, fmt.Errorf("wol.mac_address is required when wol is configured")
		}

		// Set defaults.
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 5 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 10 * time.Second
		}
		if cfg.WOL.StabilizeWait == 0 {
			cfg.WOL.StabilizeWait = 10 * time.Second
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// getExpanded returns the string at key with environment variables
// expanded. Values set on the command line were already expanded by the
// shell and are returned verbatim.
func (p *Parser) getExpanded(key string) string {
	value := p.v.GetString(key)
	if p.fromFlag(key) {
		return value
	}
	return p.expandEnv(value)
}

// fromFlag reports whether key was set by a changed command line flag.
func (p *Parser) fromFlag(key string) bool {
	name, ok := flagKeys[key]
	if !ok || p.flags == nil {
		return false
	}
	flag := p.flags.Lookup(name)
	return flag != nil && flag.Changed
}

func defaultKnownHosts() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	if cfg.Target.IsWindows() {
		if cfg.Target.Password == "" {
			return fmt.Errorf("target.password is required for windows targets")
		}
		return nil
	}

	if cfg.Target.Password == "" && cfg.Target.SSH.KeyPath == "" {
		return fmt.Errorf("target.password or ssh.key_path is required for linux targets")
	}
	if !cfg.Target.SSH.InsecureIgnoreHostKey && cfg.Target.SSH.KnownHostsPath == "" {
		return fmt.Errorf("ssh.known_hosts is required unless ssh.insecure_ignore_host_key is set")
	}

	return nil
}
