package handshake

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/hostctl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunk is output that becomes readable a fixed delay after the n-th write.
type chunk struct {
	afterWrite int // 1 = command, 2 = password
	delay      time.Duration
	data       []byte
	err        error
}

type mockChannel struct {
	mu         sync.Mutex
	chunks     []chunk
	writes     []string
	writeTimes []time.Time
	readSizes  []int
	writeErr   error

	finished     chan struct{}
	finishAfter  time.Duration // after the password write; 0 never finishes
	finishedOnce sync.Once
}

func newMockChannel(chunks ...chunk) *mockChannel {
	return &mockChannel{
		chunks:   chunks,
		finished: make(chan struct{}),
	}
}

func (m *mockChannel) readyIndex() int {
	for i, c := range m.chunks {
		if len(m.writeTimes) < c.afterWrite {
			continue
		}
		if time.Since(m.writeTimes[c.afterWrite-1]) >= c.delay {
			return i
		}
	}
	return -1
}

func (m *mockChannel) DataReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyIndex() >= 0
}

func (m *mockChannel) Read(maxBytes int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.readyIndex()
	if i < 0 {
		return nil, nil
	}
	c := m.chunks[i]
	if c.err != nil {
		m.chunks = append(m.chunks[:i], m.chunks[i+1:]...)
		return nil, c.err
	}

	n := min(maxBytes, len(c.data))
	out := c.data[:n]
	m.readSizes = append(m.readSizes, n)
	if n == len(c.data) {
		m.chunks = append(m.chunks[:i], m.chunks[i+1:]...)
	} else {
		m.chunks[i].data = c.data[n:]
	}
	return out, nil
}

func (m *mockChannel) Write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, string(p))
	m.writeTimes = append(m.writeTimes, time.Now())
	if len(m.writes) == 2 && m.finishAfter > 0 {
		time.AfterFunc(m.finishAfter, func() {
			m.finishedOnce.Do(func() { close(m.finished) })
		})
	}
	return nil
}

func (m *mockChannel) Finished() <-chan struct{} {
	return m.finished
}

func (m *mockChannel) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

func testPromptConfig() models.PromptConfig {
	return models.PromptConfig{
		PollInterval:    5 * time.Millisecond,
		PromptTimeout:   200 * time.Millisecond,
		PasswordTimeout: 100 * time.Millisecond,
		MaxReadBytes:    1024,
	}
}

func sudoPrompt(delay time.Duration) chunk {
	return chunk{afterWrite: 1, delay: delay, data: []byte("[sudo] password for dummy: ")}
}

func TestRun_Accepted(t *testing.T) {
	ch := newMockChannel(sudoPrompt(20 * time.Millisecond))
	ch.finishAfter = 110 * time.Millisecond
	cfg := testPromptConfig()

	start := time.Now()
	outcome, err := Run(context.Background(), ch, "sudo reboot", "secret", cfg)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, outcome)
	assert.Equal(t, []string{"sudo reboot\n", "secret\n"}, ch.Writes())
	// Prompt latency plus the full confirmation window.
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond+cfg.PasswordTimeout)
	assert.Less(t, elapsed, cfg.PromptTimeout+cfg.PasswordTimeout)
}

func TestRun_AcceptedWithUnrelatedOutput(t *testing.T) {
	ch := newMockChannel(
		chunk{afterWrite: 1, delay: 0, data: []byte("sudo reboot\r\n")},
		sudoPrompt(15*time.Millisecond),
		chunk{afterWrite: 2, delay: 10 * time.Millisecond, data: []byte("\r\nBroadcast message from root: The system is going down for reboot NOW!")},
	)
	ch.finishAfter = 50 * time.Millisecond

	outcome, err := Run(context.Background(), ch, "sudo reboot", "secret", testPromptConfig())

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, outcome)
	assert.Len(t, ch.Writes(), 2)
}

func TestRunWithOutput_ReturnsEverythingRead(t *testing.T) {
	ch := newMockChannel(
		chunk{afterWrite: 1, delay: 0, data: []byte("sudo reboot\r\n")},
		sudoPrompt(15*time.Millisecond),
		chunk{afterWrite: 2, delay: 10 * time.Millisecond, data: []byte("\r\nThe system is going down for reboot NOW!")},
	)
	ch.finishAfter = 50 * time.Millisecond

	outcome, output, err := RunWithOutput(context.Background(), ch, "sudo reboot", "secret", testPromptConfig())

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, outcome)
	assert.Equal(t, "sudo reboot\r\n[sudo] password for dummy: \r\nThe system is going down for reboot NOW!", output)
	assert.NotContains(t, output, "secret")
}

func TestRunWithOutput_InvalidConfig(t *testing.T) {
	outcome, output, err := RunWithOutput(context.Background(), newMockChannel(), "sudo reboot", "secret", models.PromptConfig{})

	require.Error(t, err)
	assert.Equal(t, models.OutcomeUnknown, outcome)
	assert.Empty(t, output)
}

func TestRun_PromptIsCaseInsensitive(t *testing.T) {
	ch := newMockChannel(chunk{afterWrite: 1, data: []byte("PASSWORD:")})
	ch.finishAfter = time.Millisecond

	outcome, err := Run(context.Background(), ch, "sudo shutdown -h now", "secret", testPromptConfig())

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, outcome)
	assert.Equal(t, "secret\n", ch.Writes()[1])
}

func TestRun_PromptTimeout_NoData(t *testing.T) {
	ch := newMockChannel()
	cfg := testPromptConfig()

	start := time.Now()
	outcome, err := Run(context.Background(), ch, "sudo reboot", "secret", cfg)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPromptTimeout)
	assert.Equal(t, models.OutcomePromptTimeout, outcome)
	assert.Equal(t, []string{"sudo reboot\n"}, ch.Writes(), "password must not be sent")
	assert.GreaterOrEqual(t, elapsed, cfg.PromptTimeout)
	assert.Less(t, elapsed, cfg.PromptTimeout+cfg.PasswordTimeout)
}

func TestRun_PromptTimeout_NonMatchingOutput(t *testing.T) {
	ch := newMockChannel(chunk{afterWrite: 1, data: []byte("reboot: Need to be root\r\n$ ")})

	outcome, err := Run(context.Background(), ch, "reboot", "secret", testPromptConfig())

	assert.ErrorIs(t, err, ErrPromptTimeout)
	assert.Equal(t, models.OutcomePromptTimeout, outcome)
	assert.Len(t, ch.Writes(), 1)
}

// Each read is matched on its own, so a marker split across reads is missed.
func TestRun_PromptSplitAcrossReads(t *testing.T) {
	ch := newMockChannel(
		chunk{afterWrite: 1, data: []byte("[sudo] pass")},
		chunk{afterWrite: 1, delay: 20 * time.Millisecond, data: []byte("word for dummy: ")},
	)

	outcome, err := Run(context.Background(), ch, "reboot", "secret", testPromptConfig())

	assert.ErrorIs(t, err, ErrPromptTimeout)
	assert.Equal(t, models.OutcomePromptTimeout, outcome)
	assert.Len(t, ch.Writes(), 1)
}

func TestRun_PasswordRejected(t *testing.T) {
	ch := newMockChannel(
		sudoPrompt(10*time.Millisecond),
		chunk{afterWrite: 2, delay: 30 * time.Millisecond, data: []byte("Sorry, try again.\r\n[sudo] Password for dummy: ")},
	)
	cfg := testPromptConfig()

	start := time.Now()
	outcome, err := Run(context.Background(), ch, "sudo reboot", "wrong", cfg)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPasswordRejected)
	assert.Equal(t, models.OutcomePasswordRejected, outcome)
	assert.Equal(t, []string{"sudo reboot\n", "wrong\n"}, ch.Writes(), "password is sent exactly once")
	assert.Less(t, elapsed, 10*time.Millisecond+cfg.PasswordTimeout)
}

func TestRun_WaitsForFinishedBoundedByPromptTimeout(t *testing.T) {
	ch := newMockChannel(sudoPrompt(0))
	cfg := testPromptConfig()

	start := time.Now()
	outcome, err := Run(context.Background(), ch, "sudo reboot", "secret", cfg)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, outcome)
	assert.GreaterOrEqual(t, elapsed, cfg.PasswordTimeout+cfg.PromptTimeout)
}

func TestRun_ReadErrorIsTransportError(t *testing.T) {
	ch := newMockChannel(chunk{afterWrite: 1, delay: 5 * time.Millisecond, err: errors.New("connection reset by peer")})

	outcome, err := Run(context.Background(), ch, "sudo reboot", "secret", testPromptConfig())

	require.Error(t, err)
	assert.Equal(t, models.OutcomeTransportFailure, outcome)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "read prompt", transportErr.Op)
	assert.NotErrorIs(t, err, ErrPromptTimeout)
	assert.Len(t, ch.Writes(), 1)
}

func TestRun_ReadErrorAfterPassword(t *testing.T) {
	ch := newMockChannel(
		sudoPrompt(0),
		chunk{afterWrite: 2, delay: 5 * time.Millisecond, err: errors.New("broken pipe")},
	)

	outcome, err := Run(context.Background(), ch, "sudo reboot", "secret", testPromptConfig())

	assert.Equal(t, models.OutcomeTransportFailure, outcome)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "read confirmation", transportErr.Op)
}

func TestRun_EOFBeforePromptIsTransportError(t *testing.T) {
	ch := newMockChannel(chunk{afterWrite: 1, err: io.EOF})

	outcome, err := Run(context.Background(), ch, "sudo reboot", "secret", testPromptConfig())

	assert.Equal(t, models.OutcomeTransportFailure, outcome)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRun_EOFAfterPasswordIsAccepted(t *testing.T) {
	ch := newMockChannel(
		sudoPrompt(0),
		chunk{afterWrite: 2, delay: 5 * time.Millisecond, err: io.EOF},
	)
	ch.finishAfter = 10 * time.Millisecond
	cfg := testPromptConfig()

	start := time.Now()
	outcome, err := Run(context.Background(), ch, "sudo reboot", "secret", cfg)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, outcome)
	assert.Less(t, time.Since(start), cfg.PasswordTimeout)
}

func TestRun_WriteErrorIsTransportError(t *testing.T) {
	ch := newMockChannel()
	ch.writeErr = errors.New("channel closed")

	outcome, err := Run(context.Background(), ch, "sudo reboot", "secret", testPromptConfig())

	assert.Equal(t, models.OutcomeTransportFailure, outcome)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "write command", transportErr.Op)
}

func TestRun_ContextCancelled(t *testing.T) {
	ch := newMockChannel()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome, err := Run(ctx, ch, "sudo reboot", "secret", testPromptConfig())

	assert.Equal(t, models.OutcomeCanceled, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), testPromptConfig().PromptTimeout)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testPromptConfig()
	cfg.MaxReadBytes = 0

	ch := newMockChannel()
	_, err := Run(context.Background(), ch, "sudo reboot", "secret", cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid prompt config")
	assert.Empty(t, ch.Writes())
}

func TestRun_RespectsMaxReadBytes(t *testing.T) {
	cfg := testPromptConfig()
	cfg.MaxReadBytes = 8
	ch := newMockChannel(chunk{afterWrite: 1, data: []byte("Last login: Mon Oct 19 10:00:00 2026\r\n")})

	_, err := Run(context.Background(), ch, "sudo reboot", "secret", cfg)

	assert.ErrorIs(t, err, ErrPromptTimeout)
	require.NotEmpty(t, ch.readSizes)
	for _, n := range ch.readSizes {
		assert.LessOrEqual(t, n, 8)
	}
}

func TestRun_NoStateAcrossCalls(t *testing.T) {
	cfg := testPromptConfig()

	for i := 0; i < 2; i++ {
		ch := newMockChannel(
			sudoPrompt(5*time.Millisecond),
			chunk{afterWrite: 2, delay: 5 * time.Millisecond, data: []byte("Password: ")},
		)
		outcome, err := Run(context.Background(), ch, "sudo reboot", "wrong", cfg)
		assert.ErrorIs(t, err, ErrPasswordRejected, "run %d", i)
		assert.Equal(t, models.OutcomePasswordRejected, outcome, "run %d", i)
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("EOF from peer")
	err := &TransportError{Op: "read prompt", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "handshake read prompt: EOF from peer", err.Error())
}
