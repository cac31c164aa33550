package cuserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"github.com/banshee-data/slotcar.sim/internal/cu"
	"github.com/banshee-data/slotcar.sim/internal/monitoring"
)

// Wire framing: a frame is frameStart, the payload, then either end marker.
const (
	frameStart   = '"'
	frameEnd     = '$'
	frameEndProg = '#'
)

const readBufferSize = 1024

// session owns one client stream: a growable buffer for partial frames and a
// private dispatcher bound to the shared device state.
type session struct {
	id     string
	remote string
	conn   io.ReadWriteCloser
	disp   *cu.Dispatcher
	buf    []byte
}

func (s *Server) newSession(conn io.ReadWriteCloser, remote string) *session {
	return &session{
		id:     fmt.Sprintf("sess_%s", uuid.NewString()),
		remote: remote,
		conn:   conn,
		disp:   cu.NewDispatcher(s.state, s.opts.Clock, s.opts.RedInterval, s.opts.GreenDuration),
	}
}

// run reads from the stream until it closes or fails, feeding complete frames
// to the dispatcher. Errors tear down this session only.
func (s *session) run(ctx context.Context) {
	defer s.close()

	stop := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer stop()

	log.Printf("client connected from %s (%s)", s.remote, s.id)

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if werr := s.feed(buf[:n]); werr != nil {
				if ctx.Err() == nil {
					log.Printf("write to %s failed: %v", s.remote, werr)
				}
				return
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.Printf("read from %s failed: %v", s.remote, err)
			}
			return
		}
	}
}

// feed appends data to the frame buffer and processes every complete frame in
// it, writing back one framed reply per dispatched frame.
func (s *session) feed(data []byte) error {
	s.buf = append(s.buf, data...)

	for {
		start := bytes.IndexByte(s.buf, frameStart)
		if start < 0 {
			// No start marker anywhere: everything buffered is garbage.
			s.buf = s.buf[:0]
			return nil
		}
		if start > 0 {
			// Discard noise before the start marker.
			s.buf = s.buf[start:]
		}

		end := bytes.IndexAny(s.buf, string([]byte{frameEnd, frameEndProg}))
		if end < 0 {
			// Partial frame: wait for more data.
			return nil
		}

		payload := make([]byte, end-1)
		copy(payload, s.buf[1:end])
		s.buf = s.buf[end+1:]

		monitoring.Debugf("%s received %q", s.id, payload)
		if reply := s.disp.Dispatch(payload); reply != nil {
			if err := s.writeFrame(reply); err != nil {
				return err
			}
			monitoring.Debugf("%s sent %q", s.id, reply)
		}
	}
}

func (s *session) writeFrame(payload []byte) error {
	framed := make([]byte, 0, len(payload)+2)
	framed = append(framed, frameStart)
	framed = append(framed, payload...)
	framed = append(framed, frameEnd)
	_, err := s.conn.Write(framed)
	return err
}

func (s *session) close() {
	s.disp.Close()
	s.conn.Close()
	log.Printf("client %s disconnected (%s)", s.remote, s.id)
}
