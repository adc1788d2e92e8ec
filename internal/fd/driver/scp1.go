package driver

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SCP1Driver implements the "scp1" protocol over SFTP, grounded on
// backend/sftp/sftp.go's dial-then-open-session shape: one SSH
// connection per Driver instance, reused across bursts to the same
// job_id.
type SCP1Driver struct {
	dialTimeout time.Duration

	client *ssh.Client
	sftp   *sftp.Client
}

// NewSCP1 returns an SCP1Driver factory suitable for Registry.Register.
func NewSCP1() Factory {
	return func() Driver { return &SCP1Driver{dialTimeout: 30 * time.Second} }
}

func (d *SCP1Driver) Protocol() string { return "scp1" }

func (d *SCP1Driver) Close() error {
	if d.sftp != nil {
		_ = d.sftp.Close()
	}
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

func (d *SCP1Driver) Transfer(ctx context.Context, req Request) (Result, error) {
	if d.sftp == nil {
		if err := d.dial(req.Recipient); err != nil {
			return Result{}, err
		}
	}

	destDir, err := scp1DestDir(req.Recipient)
	if err != nil {
		return Result{}, err
	}
	if err := d.sftp.MkdirAll(destDir); err != nil {
		return Result{}, fmt.Errorf("driver/scp1: mkdir %s: %w", destDir, err)
	}

	var result Result
	for _, src := range req.Files {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		n, err := d.put(src, path.Join(destDir, path.Base(src)))
		if err != nil {
			return result, fmt.Errorf("driver/scp1: put %s: %w", src, err)
		}
		result.FilesDone++
		result.BytesDone += n
	}
	return result, nil
}

func (d *SCP1Driver) dial(recipient string) error {
	u, err := url.Parse(recipient)
	if err != nil {
		return fmt.Errorf("driver/scp1: parse recipient %q: %w", recipient, err)
	}
	host := u.Host
	if u.Port() == "" {
		host = u.Hostname() + ":22"
	}
	password, _ := u.User.Password()

	cfg := &ssh.ClientConfig{
		User:            u.User.Username(),
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.dialTimeout,
	}
	client, err := ssh.Dial("tcp", host, cfg)
	if err != nil {
		return fmt.Errorf("driver/scp1: dial %s: %w", host, err)
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return fmt.Errorf("driver/scp1: new sftp client: %w", err)
	}
	d.client = client
	d.sftp = sc
	return nil
}

func scp1DestDir(recipient string) (string, error) {
	u, err := url.Parse(recipient)
	if err != nil {
		return "", err
	}
	if u.Path == "" {
		return "", fmt.Errorf("driver/scp1: recipient %q has no path", recipient)
	}
	return u.Path, nil
}

func (d *SCP1Driver) put(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := d.sftp.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := out.ReadFrom(in)
	if err != nil {
		return n, err
	}
	return n, nil
}
