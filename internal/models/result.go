package models

import "time"

// CommandRequest is a single non-interactive command.
type CommandRequest struct {
	Command    string
	PowerShell bool // windows only
}

// CommandResult holds the result of a non-interactive command.
type CommandResult struct {
	Command    string
	CommandRun bool
	Output     string
	ExitCode   int
	Error      error
}

// PowerResult holds the result of a reboot or shutdown.
type PowerResult struct {
	Action  PowerAction
	Command string
	Output  string // shell output seen during the password handshake
	Outcome Outcome
	Error   error
}

// ActionKind names what a run does against the target.
type ActionKind string

// Action kinds.
const (
	ActionExec     ActionKind = "exec"
	ActionReboot   ActionKind = "reboot"
	ActionShutdown ActionKind = "shutdown"
	ActionRegistry ActionKind = "registry"
	ActionDefender ActionKind = "defender"
	ActionTest     ActionKind = "test"
)

// Action is one operation requested from the CLI.
type Action struct {
	Kind        ActionKind
	Command     CommandRequest  // exec
	RegistryKey RegistryRootKey // registry
	Subkey      string          // registry, optional
	Wake        bool            // send WOL before connecting
}

// RunReport summarizes a finished run.
type RunReport struct {
	RunID    string
	Action   ActionKind
	Host     string
	Output   string
	Outcome  Outcome
	Duration time.Duration
}
