// Package cuserver serves the Control Unit wire protocol to clients over TCP
// or a serial port, so client software can talk to the emulator exactly as it
// would to real hardware.
package cuserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/slotcar.sim/internal/cu"
	"github.com/banshee-data/slotcar.sim/internal/timeutil"
)

// Options configures a Server. The zero value selects real time and the
// default start-light timings.
type Options struct {
	// Clock backs the per-session start-light sequencers.
	Clock timeutil.Clock

	// RedInterval and GreenDuration tune the start-light countdown.
	RedInterval   time.Duration
	GreenDuration time.Duration
}

// Server accepts client connections and runs one framing session per
// connection against the single shared device state.
type Server struct {
	state *cu.State
	opts  Options

	wg sync.WaitGroup
}

// New creates a server for the given shared device state.
func New(state *cu.State, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Server{state: state, opts: opts}
}

// Serve accepts connections from ln until ctx is cancelled, running each one
// as an independent session. It returns after every session has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.wg.Wait()

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	log.Printf("control unit server listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		sess := s.newSession(conn, conn.RemoteAddr().String())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run(ctx)
		}()
	}
}

// ServeConn runs a single session over an already-open stream, such as a
// serial port, until ctx is cancelled or the stream fails.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser, remote string) {
	sess := s.newSession(conn, remote)
	sess.run(ctx)
}
