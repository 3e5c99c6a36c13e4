// pkg/utils/ssh.go

package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig holds SSH connection configuration
type SSHConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	KeyFile  string
	Timeout  time.Duration

	// Become runs every command through sudo
	Become     bool
	BecomeUser string
}

// SSHConnection represents an SSH connection to a remote host
type SSHConnection struct {
	Config *SSHConfig
	Client *ssh.Client
}

// NewSSHConnection creates a new, not yet connected, SSH connection
func NewSSHConnection(config *SSHConfig) *SSHConnection {
	return &SSHConnection{
		Config: config,
	}
}

// Connect establishes the SSH connection
func (s *SSHConnection) Connect() error {
	authMethods, err := s.authMethods()
	if err != nil {
		return err
	}

	sshConfig := &ssh.ClientConfig{
		User:            s.Config.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.Config.Timeout,
		HostKeyAlgorithms: []string{
			ssh.KeyAlgoED25519,
			ssh.KeyAlgoECDSA256,
			ssh.KeyAlgoECDSA384,
			ssh.KeyAlgoECDSA521,
			ssh.KeyAlgoRSASHA512,
			ssh.KeyAlgoRSASHA256,
			ssh.KeyAlgoRSA,
		},
	}

	if s.Client != nil {
		s.Client.Close()
		s.Client = nil
	}

	port := s.Config.Port
	if port == "" {
		port = "22"
	}
	address := net.JoinHostPort(s.Config.Host, port)

	client, err := ssh.Dial("tcp", address, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	s.Client = client
	return nil
}

func (s *SSHConnection) authMethods() ([]ssh.AuthMethod, error) {
	if s.Config.Password != "" {
		return []ssh.AuthMethod{ssh.Password(s.Config.Password)}, nil
	}

	keyFile := s.Config.KeyFile
	if keyFile == "" {
		keyFile = filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
		if !fileExists(keyFile) {
			return nil, fmt.Errorf("no authentication method available - no password provided and no SSH key found")
		}
	}

	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key %s: %w", keyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key %s (it may be passphrase-protected): %w", keyFile, err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

// Run executes a shell command line on the remote host. The session is
// closed when ctx is cancelled.
func (s *SSHConnection) Run(ctx context.Context, command string) (CommandResult, error) {
	if s.Client == nil {
		if err := s.Connect(); err != nil {
			return CommandResult{}, fmt.Errorf("SSH client not connected and reconnection failed: %w", err)
		}
	}

	session, err := s.Client.NewSession()
	if err != nil {
		if err := s.Connect(); err != nil {
			return CommandResult{}, fmt.Errorf("failed to create session and reconnection failed: %w", err)
		}
		session, err = s.Client.NewSession()
		if err != nil {
			return CommandResult{}, fmt.Errorf("failed to create session after reconnection: %w", err)
		}
	}
	defer session.Close()

	if s.Config.Become {
		user := s.Config.BecomeUser
		if user == "" {
			user = "root"
		}
		command = ShellJoin("sudo", "-n", "-u", user, "sh", "-c", command)
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		session.Close()
		return CommandResult{}, ctx.Err()
	case err = <-done:
	}

	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("remote command %q failed: %w", command, err)
	}
	return result, nil
}

// Close closes the SSH connection
func (s *SSHConnection) Close() error {
	if s.Client != nil {
		return s.Client.Close()
	}
	return nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
