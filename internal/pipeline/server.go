package pipeline

import (
	"context"
	"sync"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/backend"
	"github.com/skymesh/skymesh-ground-monitor/internal/logging"
)

// Server consumes raw byte chunks from a backend and feeds them into the
// pipeline.
type Server struct {
	wg       sync.WaitGroup
	pipeline *Pipeline
	backend  backend.Backend
}

// NewServer creates a new Server.
func NewServer(p *Pipeline, b backend.Backend) *Server {
	return &Server{
		pipeline: p,
		backend:  b,
	}
}

// Pipeline returns the wrapped pipeline.
func (s *Server) Pipeline() *Pipeline {
	return s.pipeline
}

// Start starts consuming the backend byte stream.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for data := range s.backend.DataChan() {
			ctxID, err := uuid.NewV4()
			if err != nil {
				log.WithError(err).Error("pipeline: new uuid error")
				continue
			}

			ctx := context.WithValue(context.Background(), logging.ContextIDKey, ctxID)
			s.pipeline.HandleBytes(ctx, data)
		}
	}()
	return nil
}

// Stop waits for the server to drain the pending chunks. At this stage the
// backend must already been closed.
func (s *Server) Stop() error {
	s.wg.Wait()
	return nil
}
