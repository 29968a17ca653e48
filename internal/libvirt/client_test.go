package libvirt

import (
	"context"
	"testing"
	"time"
)

// TestConnect is an integration test that requires libvirt to be running.
func TestConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := Connect(ctx, "", 0)
	if err != nil {
		t.Skipf("libvirt not available: %v", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	}()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if c.Attacher() == nil {
		t.Fatal("Attacher() returned nil")
	}
}

func TestConnect_InvalidSocket(t *testing.T) {
	_, err := Connect(context.Background(), "/nonexistent/socket", 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected error connecting to nonexistent socket, got nil")
	}
}

func TestConnect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, "/nonexistent/socket", 0)
	if err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil client failed: %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Fatalf("Close on unconnected client failed: %v", err)
	}
}

func TestPing_Disconnected(t *testing.T) {
	c := &Client{libvirt: nil}

	if err := c.Ping(); err == nil {
		t.Fatal("expected error from Ping on nil client, got nil")
	}
}
