// Package transport provides the subscribe-all byte stream the ingestion
// workers read from.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrClosed is returned by Receive once a subscriber has been closed.
var ErrClosed = errors.New("subscriber closed")

// Subscriber delivers whole messages from a publisher, in publisher order,
// best effort.
type Subscriber interface {
	// Receive blocks until the next message arrives or ctx is done.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Endpoint locates a publisher.
type Endpoint struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Address renders the endpoint as a tcp:// URL.
func (e Endpoint) Address() string {
	return "tcp://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Validate checks the endpoint has a host and a usable port.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return errors.New("endpoint host is empty")
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("endpoint port %d out of range", e.Port)
	}
	return nil
}

func (e Endpoint) String() string { return e.Address() }
