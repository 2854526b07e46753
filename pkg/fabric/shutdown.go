package fabric

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Shutdown implements the fabric half of the shutdown sequence in spec §5:
// new connections are refused once the owning http.Server stops accepting
// (the composition root's job), and every live connection here is closed
// with StatusGoingAway, bounded by cfg.ShutdownDrainTimeout so a stuck
// socket can't hang the process past its deadline.
func (s *Server) Shutdown(ctx context.Context) {
	deadline := s.cfg.ShutdownDrainTimeout
	if deadline <= 0 {
		deadline = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	conns := s.manager.AllConnections()
	var wg sync.WaitGroup
	wg.Add(len(conns))
	for _, c := range conns {
		c := c
		go func() {
			defer wg.Done()
			c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown drain timed out with connections still open")
	}
}
