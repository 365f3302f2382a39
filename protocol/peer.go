package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Peer owns one live connection: a read loop that splits the byte
// stream into records and drains them into the session, and a write
// loop that feeds outgoing batches onto the wire.
type Peer struct {
	closed atomic.Bool
	wg     sync.WaitGroup

	conn  net.Conn
	inout FeedDrainCloser
}

// NewPeer wraps an established connection; Keep does the work.
func NewPeer(conn net.Conn, inout FeedDrainCloser) *Peer {
	return &Peer{conn: conn, inout: inout}
}

func (p *Peer) keepRead(ctx context.Context) error {
	var buf bytes.Buffer

	for !p.closed.Load() {
		if buf.Available() < typicalMTU {
			buf.Grow(typicalMTU)
		}

		idle := buf.AvailableBuffer()[:buf.Available()]
		n, err := p.conn.Read(idle)
		if err != nil {
			if errors.Is(err, io.EOF) {
				time.Sleep(time.Millisecond)
				continue
			}
			return err
		}
		buf.Write(idle[:n])

		recs, err := Split(&buf)
		if err != nil && !errors.Is(err, ErrIncomplete) {
			return err
		}
		if len(recs) == 0 {
			continue
		}
		if err := p.inout.Drain(ctx, recs); err != nil {
			return err
		}
	}
	return nil
}

func (p *Peer) keepWrite(ctx context.Context) error {
	for !p.closed.Load() {
		recs, err := p.inout.Feed(ctx)
		if err != nil {
			return err
		}

		b := net.Buffers(recs)
		for len(b) > 0 {
			if _, err = b.WriteTo(p.conn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Peer) Keep(ctx context.Context) (rerr, werr, cerr error) {
	p.wg.Add(2)
	defer p.wg.Add(-2)

	if p.closed.Load() {
		return nil, nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErrCh, writeErrCh := make(chan error, 1), make(chan error, 1)
	go func() { readErrCh <- p.keepRead(ctx) }()
	go func() { writeErrCh <- p.keepWrite(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case rerr = <-readErrCh:
			if errors.Is(rerr, net.ErrClosed) {
				// we probably closed it ourselves
				rerr = nil
			}
		case werr = <-writeErrCh:
			// closing after the write side is done cancels the read side
			cerr = p.conn.Close()
		}
		p.closed.Store(true)
		cancel()
	}
	_ = p.inout.Close()
	p.conn = nil
	return
}

func (p *Peer) Close() {
	p.closed.Store(true)
	p.wg.Wait()

	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
