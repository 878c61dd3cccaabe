// Package remote implements the privileged execution channel to the
// target portal's host. Operations that the REST API does not expose
// (bulk user-field creation, backfilling comment timestamps) run there as
// remote commands over SSH: hand off a JSON payload, start the job, poll
// for a completion marker, retrieve the result.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
)

// Channel runs commands on the remote host. Each operation opens a fresh
// connection; the channel holds no persistent state.
type Channel struct {
	cfg config.SSH
	log zerolog.Logger
}

// New creates a channel from the SSH settings. Call config.ValidateSSH
// before using it.
func New(cfg config.SSH, log zerolog.Logger) *Channel {
	return &Channel{cfg: cfg, log: log.With().Str("remote", cfg.Host).Logger()}
}

func (c *Channel) dial() (*ssh.Client, error) {
	key, err := os.ReadFile(c.cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading SSH key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing SSH key: %w", err)
	}

	addr := c.cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	clientCfg := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}

	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return client, nil
}

// Run executes a command and returns its combined output.
func (c *Channel) Run(ctx context.Context, command string) (string, error) {
	out, err := c.run(ctx, command, nil)
	return out, err
}

func (c *Channel) run(ctx context.Context, command string, stdin []byte) (string, error) {
	client, err := c.dial()
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening session: %w", err)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	var buf bytes.Buffer
	session.Stdout = &buf
	session.Stderr = &buf

	done := make(chan error, 1)
	if err := session.Start(command); err != nil {
		return "", fmt.Errorf("starting %q: %w", command, err)
	}
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		session.Close()
		return buf.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			return buf.String(), fmt.Errorf("running %q: %w (%s)", command, err, strings.TrimSpace(buf.String()))
		}
		return buf.String(), nil
	}
}

// Put streams data into a remote file, creating parent directories first.
func (c *Channel) Put(ctx context.Context, data []byte, remotePath string) error {
	dir := remotePath
	if i := strings.LastIndex(remotePath, "/"); i > 0 {
		dir = remotePath[:i]
	}
	command := fmt.Sprintf("mkdir -p %s && cat > %s", shellQuote(dir), shellQuote(remotePath))
	if _, err := c.run(ctx, command, data); err != nil {
		return fmt.Errorf("uploading %s: %w", remotePath, err)
	}
	c.log.Debug().Str("path", remotePath).Int("bytes", len(data)).Msg("uploaded file")
	return nil
}

// Fetch reads a remote file.
func (c *Channel) Fetch(ctx context.Context, remotePath string) ([]byte, error) {
	out, err := c.run(ctx, "cat "+shellQuote(remotePath), nil)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", remotePath, err)
	}
	return []byte(out), nil
}

// Remove deletes remote files, ignoring missing ones.
func (c *Channel) Remove(ctx context.Context, remotePaths ...string) error {
	quoted := make([]string, len(remotePaths))
	for i, p := range remotePaths {
		quoted[i] = shellQuote(p)
	}
	_, err := c.run(ctx, "rm -f "+strings.Join(quoted, " "), nil)
	return err
}

// exists reports whether a remote file is present.
func (c *Channel) exists(ctx context.Context, remotePath string) bool {
	out, err := c.run(ctx, fmt.Sprintf("test -f %s && echo OK || echo MISSING", shellQuote(remotePath)), nil)
	return err == nil && strings.Contains(out, "OK")
}

// WaitForFile polls for a completion marker until it appears or the
// attempt budget runs out.
func (c *Channel) WaitForFile(ctx context.Context, remotePath string, interval time.Duration, attempts int) error {
	for i := 0; i < attempts; i++ {
		if c.exists(ctx, remotePath) {
			return nil
		}
		c.log.Debug().Str("path", remotePath).Int("attempt", i+1).Msg("completion marker not present yet")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("timed out waiting for %s after %d attempts", remotePath, attempts)
}

// shellQuote single-quotes a path for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
