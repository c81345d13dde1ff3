package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Settings configures the SSH connection to the host.
type Settings struct {
	Host     string
	Port     int
	User     string
	Password string
	// Timeout bounds dialing plus command execution.
	Timeout time.Duration
	// KnownHostsFile enables host key verification when set. Without it,
	// any host key is accepted.
	KnownHostsFile string
}

// Addr returns host:port.
func (s Settings) Addr() string {
	port := s.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(port))
}

// SSHRunner opens one authenticated SSH session per command.
type SSHRunner struct {
	settings Settings
	config   *ssh.ClientConfig
}

// NewSSHRunner creates an SSHRunner. It fails only if the known hosts file
// cannot be loaded; no connection is made until Run.
func NewSSHRunner(settings Settings) (*SSHRunner, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if settings.KnownHostsFile != "" {
		cb, err := knownhosts.New(settings.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &SSHRunner{
		settings: settings,
		config: &ssh.ClientConfig{
			User: settings.User,
			Auth: []ssh.AuthMethod{
				ssh.Password(settings.Password),
				// ESXi commonly only offers keyboard-interactive for root.
				ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
					answers := make([]string, len(questions))
					for i := range answers {
						answers[i] = settings.Password
					}
					return answers, nil
				}),
			},
			HostKeyCallback: hostKeyCallback,
			Timeout:         settings.Timeout,
		},
	}, nil
}

// Run executes command and returns its output. Dial, handshake, session and
// timeout failures are returned as *ConnectionError.
func (r *SSHRunner) Run(ctx context.Context, command string) (Output, error) {
	if r.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.settings.Timeout)
		defer cancel()
	}

	addr := r.settings.Addr()
	dialer := net.Dialer{Timeout: r.settings.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Output{}, &ConnectionError{Addr: addr, Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, r.config)
	if err != nil {
		conn.Close()
		return Output{}, &ConnectionError{Addr: addr, Err: err}
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Output{}, &ConnectionError{Addr: addr, Err: fmt.Errorf("opening session: %w", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		client.Close()
		return Output{}, &ConnectionError{Addr: addr, Err: ctx.Err()}
	case err = <-done:
	}

	out := Output{
		Stdout: string(bytes.ToValidUTF8(stdout.Bytes(), nil)),
		Stderr: string(bytes.ToValidUTF8(stderr.Bytes(), nil)),
	}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitStatus = exitErr.ExitStatus()
	default:
		return out, &ConnectionError{Addr: addr, Err: err}
	}
	return out, nil
}
