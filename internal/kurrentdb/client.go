// Package kurrentdb holds the shared KurrentDB (EventStoreDB) connection used
// by the audit log and the domain event publisher.
package kurrentdb

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/config"
)

// Client wraps the EventStore client with additional functionality.
type Client struct {
	db *esdb.Client
	mu sync.RWMutex
}

// NewClient creates a new KurrentDB client.
func NewClient(cfg config.KurrentDBConfig) (*Client, error) {
	settings, err := esdb.ParseConnectionString(ConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Client{db: db}, nil
}

// Connect verifies that the server answers reads.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.HealthCheck(ctx); err != nil {
		return fmt.Errorf("failed to verify connection: %w", err)
	}
	return nil
}

// DB returns the underlying EventStore client.
func (c *Client) DB() *esdb.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// HealthCheck verifies the connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stream, err := c.DB().ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}

// IsStreamNotFound reports whether err means the stream does not exist yet.
func IsStreamNotFound(err error) bool {
	var esdbErr *esdb.Error
	if stderrors.As(err, &esdbErr) {
		return esdbErr.Code() == esdb.ErrorCodeResourceNotFound
	}
	return false
}

// IsEndOfStream reports whether a Recv error marks the end of a read.
func IsEndOfStream(err error) bool {
	return stderrors.Is(err, io.EOF)
}
