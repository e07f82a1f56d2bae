// Package wol wakes a sleeping target with a magic packet and waits until
// it answers on its management port.
package wol

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fgeck/hostctl/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig, target models.TargetConfig) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Dialer opens TCP connections to probe the target's management port.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to the specified MAC address.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	if err := client.Wake(net.JoinHostPort(ip.String(), "9"), mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient  Client
	httpClient HTTPClient
	dialer     Dialer
	logger     zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		dialer: &net.Dialer{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// NewWithClients creates a new WOL service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, wolClient Client, httpClient HTTPClient, dialer Dialer) *Impl {
	return &Impl{
		wolClient:  wolClient,
		httpClient: httpClient,
		dialer:     dialer,
		logger:     logger,
	}
}

// Wake sends a WOL packet and waits for the target to become reachable.
// Readiness is checked against cfg.PollURL when set, otherwise against the
// SSH or WinRM port of the target.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig, target models.TargetConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := time.Now()
	defer func() { result.WaitDuration = time.Since(start) }()

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
		return result, nil
	}

	logger := s.logger.With().Str("mac", mac.String()).Logger()
	logger.Info().Str("broadcast", cfg.BroadcastIP).Msg("sending WOL packet")

	if err := s.wolClient.Wake(cfg.BroadcastIP, mac); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}
	result.PacketSent = true

	p := s.newProbe(cfg, target)
	logger.Info().
		Stringer("probe", p).
		Dur("timeout", cfg.Timeout).
		Msg("waiting for target to become available")

	attempts, err := s.waitForTarget(ctx, logger, cfg, p)
	result.Attempts = attempts
	if err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	if cfg.StabilizeWait > 0 {
		logger.Debug().Dur("wait", cfg.StabilizeWait).Msg("waiting for target to stabilize")
		if err := sleep(ctx, cfg.StabilizeWait); err != nil {
			result.Error = err
			return result, nil //nolint:nilerr // error is stored in result struct by design
		}
	}

	result.TargetReady = true
	logger.Info().
		Int("attempts", attempts).
		Dur("duration", time.Since(start)).
		Msg("target is ready")

	return result, nil
}

// probe reports whether the target answers yet.
type probe interface {
	Check(ctx context.Context) error
	String() string
}

// httpProbe treats any HTTP response as the target being up.
type httpProbe struct {
	client HTTPClient
	url    string
}

func (p httpProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (p httpProbe) String() string { return p.url }

// tcpProbe succeeds once the address accepts a connection.
type tcpProbe struct {
	dialer Dialer
	addr   string
}

func (p tcpProbe) Check(ctx context.Context) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p tcpProbe) String() string { return "tcp://" + p.addr }

func (s *Impl) newProbe(cfg models.WOLConfig, target models.TargetConfig) probe {
	if cfg.PollURL != "" {
		return httpProbe{client: s.httpClient, url: cfg.PollURL}
	}
	return tcpProbe{dialer: s.dialer, addr: target.ManagementAddress()}
}

// waitForTarget polls p until it succeeds, cfg.Timeout elapses or ctx ends.
// It returns the number of probes made.
func (s *Impl) waitForTarget(ctx context.Context, logger zerolog.Logger, cfg models.WOLConfig, p probe) (int, error) {
	deadline := time.Now().Add(cfg.Timeout)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		if time.Now().After(deadline) {
			return attempt - 1, fmt.Errorf("timeout waiting for target after %s", cfg.Timeout)
		}

		err := p.Check(ctx)
		if err == nil {
			return attempt, nil
		}
		logger.Debug().Err(err).Int("attempt", attempt).Msg("target not ready yet")

		if err := sleep(ctx, cfg.PollInterval); err != nil {
			return attempt, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
