package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type SFTPConfig struct {
	Addr           string
	Username       string
	Password       string
	PrivateKeyPath string
	Dir            string
}

// SFTPStore writes objects into a directory on a remote host over SFTP. The
// SSH connection is opened lazily and re-dialled after a failure.
type SFTPStore struct {
	cfg  SFTPConfig
	auth []ssh.AuthMethod

	mu     sync.Mutex
	ssh    *ssh.Client
	client *sftp.Client
}

var _ Store = (*SFTPStore)(nil)

func NewSFTPStore(cfg SFTPConfig) (*SFTPStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("sftp addr is required")
	}
	if !strings.Contains(cfg.Addr, ":") {
		cfg.Addr += ":22"
	}
	auth, err := buildAuthMethods(cfg)
	if err != nil {
		return nil, err
	}
	return &SFTPStore{cfg: cfg, auth: auth}, nil
}

func buildAuthMethods(cfg SFTPConfig) ([]ssh.AuthMethod, error) {
	methods := make([]ssh.AuthMethod, 0, 2)
	if keyPath := strings.TrimSpace(cfg.PrivateKeyPath); keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse ssh private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if password := strings.TrimSpace(cfg.Password); password != "" {
		methods = append(methods, ssh.Password(password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no sftp authentication method configured")
	}
	return methods, nil
}

func (s *SFTPStore) conn() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if _, err := s.client.Getwd(); err == nil {
			return s.client, nil
		}
		s.closeLocked()
	}

	sshClient, err := ssh.Dial("tcp", s.cfg.Addr, &ssh.ClientConfig{
		User:            s.cfg.Username,
		Auth:            s.auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh dial failed: %w", err)
	}
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("start sftp session: %w", err)
	}
	if err := client.MkdirAll(s.cfg.Dir); err != nil {
		client.Close()
		sshClient.Close()
		return nil, fmt.Errorf("create remote dir %s: %w", s.cfg.Dir, err)
	}
	s.ssh = sshClient
	s.client = client
	return client, nil
}

func (s *SFTPStore) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	client, err := s.conn()
	if err != nil {
		return err
	}

	remotePath := path.Join(s.cfg.Dir, key)
	tmpPath := remotePath + ".tmp"
	file, err := client.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpPath, err)
	}
	if _, err := file.ReadFrom(data); err != nil {
		file.Close()
		_ = client.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", remotePath, err)
	}
	if err := file.Chmod(0o644); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return client.PosixRename(tmpPath, remotePath)
}

func (s *SFTPStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	file, err := client.Open(path.Join(s.cfg.Dir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// Close tears down the SFTP session and the SSH connection.
func (s *SFTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *SFTPStore) closeLocked() error {
	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	if s.ssh != nil {
		if cerr := s.ssh.Close(); err == nil {
			err = cerr
		}
		s.ssh = nil
	}
	return err
}
