// Package udp implements a radio backend reading raw frames from UDP
// datagrams.
package udp

import (
	"net"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/backend"
	"github.com/skymesh/skymesh-ground-monitor/internal/config"
)

// maxDatagramSize bounds a single read. Radio frames are far smaller, the
// headroom covers bridges that batch multiple frames per datagram.
const maxDatagramSize = 4096

// Backend implements a UDP radio backend.
type Backend struct {
	conn     *net.UDPConn
	dataChan chan []byte
	closed   chan struct{}
}

// NewBackend creates a new Backend.
func NewBackend(c config.Config) (backend.Backend, error) {
	addr, err := net.ResolveUDPAddr("udp", c.Monitor.Backend.UDP.Bind)
	if err != nil {
		return nil, errors.Wrap(err, "backend/udp: resolve bind address error")
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "backend/udp: listen error")
	}

	log.WithFields(log.Fields{
		"bind": addr.String(),
	}).Info("backend/udp: listening for radio frames")

	b := Backend{
		conn:     conn,
		dataChan: make(chan []byte, 100),
		closed:   make(chan struct{}),
	}
	go b.readLoop()

	return &b, nil
}

// DataChan implements the backend.Backend interface.
func (b *Backend) DataChan() chan []byte {
	return b.dataChan
}

// Close implements the backend.Backend interface.
func (b *Backend) Close() error {
	log.Info("backend/udp: closing backend")
	close(b.closed)
	return b.conn.Close()
}

func (b *Backend) readLoop() {
	defer close(b.dataChan)

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-b.closed:
				return
			default:
			}
			log.WithError(err).Error("backend/udp: read error")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case b.dataChan <- data:
		default:
			log.Warning("backend/udp: data channel full, dropping chunk")
		}
	}
}
