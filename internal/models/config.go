// Package models contains the data structures used throughout hostctl.
package models

// AppConfig holds the complete configuration for one hostctl invocation.
type AppConfig struct {
	Target   TargetConfig
	Prompt   PromptConfig
	Power    PowerConfig
	WOL      *WOLConfig      // nil if not configured
	Telegram *TelegramConfig // nil if not configured
}
