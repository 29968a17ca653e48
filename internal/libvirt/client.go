package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultSocket is the qemu:///system control socket.
	DefaultSocket = "/var/run/libvirt/libvirt-sock"
	// DefaultTimeout bounds the initial dial.
	DefaultTimeout = 5 * time.Second
)

// Client is a connection to the local libvirt daemon.
type Client struct {
	libvirt *libvirt.Libvirt
}

// Connect dials the libvirt daemon on socketPath. Empty and zero arguments
// select DefaultSocket and DefaultTimeout. The dial is abandoned when ctx
// is done. Close the returned Client when finished.
func Connect(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		l := libvirt.NewWithDialer(dialers.NewLocal(
			dialers.WithSocket(socketPath),
			dialers.WithLocalTimeout(timeout),
		))
		if err := l.Connect(); err != nil {
			resultCh <- result{err: fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)}
			return
		}
		resultCh <- result{client: &Client{libvirt: l}}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-resultCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Close disconnects. It is safe to call on a nil or closed Client.
func (c *Client) Close() error {
	if c == nil || c.libvirt == nil {
		return nil
	}

	if err := c.libvirt.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}
	c.libvirt = nil

	return nil
}

// Ping checks that the connection is alive.
func (c *Client) Ping() error {
	if c == nil || c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

// Attacher returns an Attacher using this connection.
func (c *Client) Attacher() *Attacher {
	return NewAttacher(c.libvirt)
}
