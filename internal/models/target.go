package models

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Supported target operating systems.
const (
	OSLinux   = "linux"
	OSWindows = "windows"
)

// TargetConfig describes the remote host and the credentials used to log in.
type TargetConfig struct {
	Host     string `validate:"required,hostname_rfc1123|ip"`
	OS       string `validate:"required,oneof=linux windows"`
	Username string `validate:"required"`
	Password string // also used for sudo on linux targets
	SSH      SSHConfig
	WinRM    WinRMConfig
}

// IsWindows reports whether the target is managed over WinRM.
func (t TargetConfig) IsWindows() bool {
	return t.OS == OSWindows
}

// SSHConfig holds SSH connection settings.
type SSHConfig struct {
	Port                  int    `validate:"min=1,max=65535"`
	KeyPath               string // optional private key for public key auth
	PrivateKey            []byte // loaded from KeyPath
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration `validate:"gt=0"`
}

// SSHAddress returns host:port for the SSH endpoint.
func (t TargetConfig) SSHAddress() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.SSH.Port))
}

// WinRMConfig holds WinRM connection settings.
type WinRMConfig struct {
	Port     int  `validate:"min=1,max=65535"`
	HTTPS    bool
	Insecure bool // skip TLS verification
	Timeout  time.Duration `validate:"gt=0"`
}

// String describes the endpoint for log messages.
func (w WinRMConfig) String() string {
	scheme := "http"
	if w.HTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s/%d", scheme, w.Port)
}

// WinRMAddress returns host:port for the WinRM endpoint.
func (t TargetConfig) WinRMAddress() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.WinRM.Port))
}

// ManagementAddress returns the address of the transport hostctl uses for
// this target.
func (t TargetConfig) ManagementAddress() string {
	if t.IsWindows() {
		return t.WinRMAddress()
	}
	return t.SSHAddress()
}
