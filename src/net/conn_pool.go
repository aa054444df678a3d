package net

import (
	"bufio"
	"net"
	"sync"

	"github.com/ugorji/go/codec"
)

const bufSize = 4096

// netConn is an outbound connection with its msgpack codec.
type netConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

func newNetConn(target string, conn net.Conn) *netConn {
	w := bufio.NewWriterSize(conn, bufSize)
	return &netConn{
		target: target,
		conn:   conn,
		w:      w,
		dec:    codec.NewDecoder(bufio.NewReaderSize(conn, bufSize), msgpackHandle),
		enc:    codec.NewEncoder(w, msgpackHandle),
	}
}

// Release closes the underlying connection.
func (c *netConn) Release() error {
	return c.conn.Close()
}

// connPool keeps up to max idle connections per target. Once drained it
// refuses new connections and closes whatever is handed back.
type connPool struct {
	mu     sync.Mutex
	max    int
	idle   map[string][]*netConn
	closed bool
}

func newConnPool(max int) *connPool {
	return &connPool{
		max:  max,
		idle: make(map[string][]*netConn),
	}
}

// take pops the most recently returned connection to target, or nil.
func (p *connPool) take(target string) *netConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := p.idle[target]
	if len(conns) == 0 {
		return nil
	}
	last := len(conns) - 1
	c := conns[last]
	conns[last] = nil
	p.idle[target] = conns[:last]
	return c
}

// put hands c back. It is released when the pool is full or drained.
func (p *connPool) put(c *netConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.idle[c.target]) >= p.max {
		c.Release()
		return
	}
	p.idle[c.target] = append(p.idle[c.target], c)
}

// size returns the number of idle connections to target.
func (p *connPool) size(target string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[target])
}

// drain releases every idle connection.
func (p *connPool) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for target, conns := range p.idle {
		for _, c := range conns {
			c.Release()
		}
		delete(p.idle, target)
	}
}
