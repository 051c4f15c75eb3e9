// Package natscomm implements comm.Communicator over NATS, for
// deployments where each PE is its own OS process rather than a
// goroutine in pkg/comm/local's single-process simulation. It is
// adapted from the connection-management style of a generic pub/sub
// client wrapper: singleton-free here (one Client per PE process),
// reconnect handling, and subject-based addressing instead of a
// global registry.
package natscomm

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/pmehnert/distributed-string-sorting/internal/xlog"
)

// Config configures the connection to the NATS server shared by every
// PE in the job.
type Config struct {
	Address       string
	Username      string
	Password      string
	CredsFilePath string
}

// Client wraps a NATS connection used to address one rank's subjects.
type Client struct {
	conn          *nats.Conn
	mu            sync.Mutex
	subscriptions []*nats.Subscription
}

// Dial connects to the NATS server described by cfg.
func Dial(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("natscomm: address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			xlog.Warnf("natscomm: disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		xlog.Infof("natscomm: reconnected to %s", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		xlog.Errorf("natscomm: error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("natscomm: connect failed: %w", err)
	}
	xlog.Infof("natscomm: connected to %s", cfg.Address)
	return &Client{conn: nc}, nil
}

func (c *Client) subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, fmt.Errorf("natscomm: subscribe to %q failed: %w", subject, err)
	}
	c.subscriptions = append(c.subscriptions, sub)
	return sub, nil
}

// Close unsubscribes everything and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subscriptions {
		_ = s.Unsubscribe()
	}
	c.subscriptions = nil
	c.conn.Close()
}
