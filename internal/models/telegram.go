package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string `validate:"required"`
	ChatID   string `validate:"required"`
}

// TelegramMessage holds the data for an action notification.
type TelegramMessage struct {
	Success   bool
	Host      string
	OS        string
	Action    ActionKind
	Command   string
	RunID     string
	StartTime time.Time
	Duration  time.Duration
	Outcome   Outcome

	// Error info (if failed).
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	MessageID   int
	Error       error
}
