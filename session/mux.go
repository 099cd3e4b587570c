// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/NorasTech/detached-shell/lib/clock"
)

const (
	// readChunkSize bounds a single read from the PTY master or a
	// client socket.
	readChunkSize = 16 * 1024

	// clientQueueSlots is the item capacity of a client's output
	// queue channel. The byte-count soft cap is the real limit;
	// the slot count only bounds bookkeeping.
	clientQueueSlots = 256

	// shutdownFlushBudget bounds how long shutdown waits for client
	// output queues to drain before forcing sockets closed.
	shutdownFlushBudget = time.Second

	// masterInputSlots bounds in-flight input to the PTY master
	// writer; input beyond it waits in the loop's backlog.
	masterInputSlots = 64

	// maxInputBacklogBytes caps the loop's input backlog. The shell
	// can stop consuming input indefinitely (terminal flow control),
	// so the backlog retains typed input up to this bound and drops
	// beyond it rather than growing without limit.
	maxInputBacklogBytes = 1 << 20
)

// clearSequence resets a client's terminal after its queue is
// dropped: clear screen, cursor home.
var clearSequence = []byte("\x1b[2J\x1b[H")

// EventRecorder receives session lifecycle events for the history
// log. Implementations must not block; recording failures are the
// recorder's problem, not the multiplexer's.
type EventRecorder interface {
	RecordAttach(attached int)
	RecordDetach(attached int)
	RecordResize(rows, cols int)
	RecordKilled()
	RecordExit(status int)
}

// nopRecorder discards events.
type nopRecorder struct{}

func (nopRecorder) RecordAttach(int)      {}
func (nopRecorder) RecordDetach(int)      {}
func (nopRecorder) RecordResize(_, _ int) {}
func (nopRecorder) RecordKilled()         {}
func (nopRecorder) RecordExit(int)        {}

// muxParams wires a multiplexer. The master is abstract (an
// io.ReadWriteCloser plus a resize function) so tests can drive the
// loop with in-memory pipes instead of a real PTY.
type muxParams struct {
	master   io.ReadWriteCloser
	resize   func(rows, cols int) error
	listener net.Listener

	ring *Ring

	// queueMax is the per-client output queue soft cap in bytes.
	queueMax int

	// maxClients limits concurrent attaches; zero means unlimited.
	maxClients int

	// writeStatus persists the attached count. Called from the loop
	// on every membership change.
	writeStatus func(attached int)

	recorder EventRecorder
	logger   *slog.Logger
	clock    clock.Clock

	// shellExited delivers the shell's exit status once.
	shellExited <-chan int

	// signals delivers SIGTERM/SIGINT.
	signals <-chan os.Signal

	// stopShell asks the shell to exit (SIGHUP, then SIGKILL on a
	// timer). Called when a signal triggers shutdown.
	stopShell func()

	// initialRows/initialCols are applied while no client is
	// attached.
	initialRows, initialCols int
}

// clientEvent is anything a client's reader or writer goroutine
// reports to the loop.
type clientEvent struct {
	id    int
	data  []byte
	frame *Frame
	err   error
}

// writeReport tells the loop that n queued bytes left a client's
// queue (written or discarded).
type writeReport struct {
	id int
	n  int
}

// muxClient is the loop-owned record of one attached client.
type muxClient struct {
	id         int
	conn       net.Conn
	rows, cols int

	// queue carries output chunks to the writer goroutine. Closed by
	// the loop to request a flush-then-close.
	queue chan []byte

	// clearRequests tells the writer to discard everything queued
	// and write the terminal reset sequence.
	clearRequests chan struct{}

	// writerDone is closed when the writer goroutine has flushed and
	// closed the socket.
	writerDone chan struct{}

	// queuedBytes is the loop's accounting of bytes enqueued but not
	// yet reported written.
	queuedBytes int

	// replayBytes is the unwritten remainder of the initial scrollback
	// replay. It is excluded from the queue cap: the replay may
	// legitimately exceed the cap (the ring can be larger) and must
	// reach the client rather than evict it.
	replayBytes int
}

// mux is the supervisor's event loop. A single goroutine owns every
// field; satellite goroutines (accept, master reader, per-client
// readers and writers) communicate with it exclusively through
// channels, so no locks guard the client set or the scrollback ring.
type mux struct {
	muxParams

	clients map[int]*muxClient
	nextID  int

	conns   chan net.Conn
	output  chan []byte
	events  chan clientEvent
	reports chan writeReport

	// masterIn carries input chunks to the master writer goroutine.
	masterIn chan []byte

	// inputBacklog holds client input the master writer has not
	// accepted yet, in arrival order.
	inputBacklog      [][]byte
	inputBacklogBytes int

	// done is closed at shutdown so satellite goroutines blocked on
	// channel sends to the loop can exit.
	done chan struct{}

	// appliedRows/appliedCols is the window size last applied to the
	// master, to keep repeated resizes idempotent.
	appliedRows, appliedCols int
}

func newMux(params muxParams) *mux {
	if params.recorder == nil {
		params.recorder = nopRecorder{}
	}
	if params.logger == nil {
		params.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if params.clock == nil {
		params.clock = clock.Real()
	}
	if params.resize == nil {
		params.resize = func(int, int) error { return nil }
	}
	if params.writeStatus == nil {
		params.writeStatus = func(int) {}
	}
	if params.stopShell == nil {
		params.stopShell = func() {}
	}
	return &mux{
		muxParams: params,
		clients:   make(map[int]*muxClient),
		conns:     make(chan net.Conn),
		output:    make(chan []byte),
		events:    make(chan clientEvent),
		reports:   make(chan writeReport),
		masterIn:  make(chan []byte, masterInputSlots),
		done:      make(chan struct{}),
	}
}

// run services the session until the shell exits or a termination
// signal arrives. It returns the shell's exit status.
func (m *mux) run() int {
	go m.acceptLoop()

	masterClosed := make(chan struct{})
	go m.masterReadLoop(masterClosed)
	go m.masterWriteLoop()

	m.writeStatus(0)

	for {
		select {
		case conn := <-m.conns:
			m.acceptClient(conn)

		case data := <-m.output:
			m.ring.Write(data)
			for _, client := range m.clients {
				m.enqueue(client, data)
			}

		case m.inputSink() <- m.inputHead():
			m.popInputHead()

		case <-masterClosed:
			// EOF or EIO on the master means the shell side is gone.
			m.logger.Info("master closed, shutting down")
			return m.shutdown(m.awaitShellExit())

		case event := <-m.events:
			m.handleClientEvent(event)

		case report := <-m.reports:
			if client, ok := m.clients[report.id]; ok {
				client.queuedBytes -= report.n
				// The writer drains in order, so the first reported
				// bytes settle the replay debt.
				if client.replayBytes > 0 {
					client.replayBytes -= report.n
					if client.replayBytes < 0 {
						client.replayBytes = 0
					}
				}
			}

		case status := <-m.shellExited:
			m.logger.Info("shell exited", "status", status)
			return m.shutdown(status)

		case sig := <-m.signals:
			m.logger.Info("terminating on signal", "signal", sig.String())
			m.recorder.RecordKilled()
			m.stopShell()
			return m.shutdown(m.awaitShellExit())
		}
	}
}

// acceptLoop feeds new connections to the loop until the listener
// closes.
func (m *mux) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		select {
		case m.conns <- conn:
		case <-m.done:
			conn.Close()
			return
		}
	}
}

// masterReadLoop drains the PTY master and closes done on EOF or
// error (EIO is how a PTY reports that the slave side is gone).
func (m *mux) masterReadLoop(done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, readChunkSize)
	for {
		n, err := m.master.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case m.output <- chunk:
			case <-m.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// masterWriteLoop forwards client input to the PTY master.
func (m *mux) masterWriteLoop() {
	for {
		select {
		case data := <-m.masterIn:
			if _, err := m.master.Write(data); err != nil {
				// The master is gone; the read side triggers shutdown.
				return
			}
		case <-m.done:
			return
		}
	}
}

// inputSink enables the loop's send-to-writer case only while the
// backlog holds something; a nil channel disables the select case.
func (m *mux) inputSink() chan<- []byte {
	if len(m.inputBacklog) == 0 {
		return nil
	}
	return m.masterIn
}

func (m *mux) inputHead() []byte {
	if len(m.inputBacklog) == 0 {
		return nil
	}
	return m.inputBacklog[0]
}

func (m *mux) popInputHead() {
	m.inputBacklogBytes -= len(m.inputBacklog[0])
	m.inputBacklog[0] = nil
	m.inputBacklog = m.inputBacklog[1:]
	if len(m.inputBacklog) == 0 {
		m.inputBacklog = nil
	}
}

// acceptClient performs the implicit attach handshake: register the
// client, send the scrollback replay, notify peers, update status.
// Replay is enqueued before the client joins the fan-out set, so a
// client never sees live output ahead of its replay.
func (m *mux) acceptClient(conn net.Conn) {
	if m.maxClients > 0 && len(m.clients) >= m.maxClients {
		fmt.Fprintf(conn, "session already has %d clients\r\n", len(m.clients))
		conn.Close()
		return
	}

	m.nextID++
	client := &muxClient{
		id:            m.nextID,
		conn:          conn,
		rows:          m.initialRows,
		cols:          m.initialCols,
		queue:         make(chan []byte, clientQueueSlots),
		clearRequests: make(chan struct{}, 1),
		writerDone:    make(chan struct{}),
	}

	go m.clientWriteLoop(client)
	go m.clientReadLoop(client)

	if replay := m.ring.Bytes(); len(replay) > 0 {
		// The replay may exceed the queue cap (the ring can be larger);
		// it is accounted but exempt from eviction until drained.
		client.replayBytes = len(replay)
		m.enqueue(client, replay)
	}

	notice := []byte(fmt.Sprintf("\r\n[Another client connected (total: %d)]\r\n", len(m.clients)+1))
	for _, peer := range m.clients {
		m.enqueue(peer, notice)
	}

	m.clients[client.id] = client
	m.applyWindowSize()
	m.writeStatus(len(m.clients))
	m.recorder.RecordAttach(len(m.clients))
	m.logger.Info("client attached", "client", client.id, "attached", len(m.clients))
}

// clientReadLoop reads a client socket, splits frames from data, and
// feeds both to the loop in stream order.
func (m *mux) clientReadLoop(client *muxClient) {
	var scanner Scanner
	buf := make([]byte, readChunkSize)
	for {
		n, err := client.conn.Read(buf)
		if n > 0 {
			for _, segment := range scanner.Feed(buf[:n]) {
				event := clientEvent{id: client.id, frame: segment.Frame, data: segment.Data}
				select {
				case m.events <- event:
				case <-m.done:
					return
				}
			}
		}
		if err != nil {
			select {
			case m.events <- clientEvent{id: client.id, err: err}:
			case <-m.done:
			}
			return
		}
	}
}

// clientWriteLoop drains a client's output queue. It exits after the
// loop closes the queue (flushing what remains) or on a write error,
// and closes the socket on the way out.
func (m *mux) clientWriteLoop(client *muxClient) {
	defer close(client.writerDone)
	defer client.conn.Close()
	for {
		select {
		case <-client.clearRequests:
			m.discardQueued(client)
			if _, err := client.conn.Write(clearSequence); err != nil {
				return
			}
		case data, ok := <-client.queue:
			if !ok {
				return
			}
			_, err := client.conn.Write(data)
			m.report(client, len(data))
			if err != nil {
				return
			}
		}
	}
}

// discardQueued drops everything currently in the queue, reporting
// the discarded bytes so the loop's accounting stays correct.
func (m *mux) discardQueued(client *muxClient) {
	for {
		select {
		case data, ok := <-client.queue:
			if !ok {
				return
			}
			m.report(client, len(data))
		default:
			return
		}
	}
}

// report sends a write report without blocking forever: after
// shutdown the loop stops draining reports.
func (m *mux) report(client *muxClient, n int) {
	select {
	case m.reports <- writeReport{id: client.id, n: n}:
	case <-m.done:
	}
}

// enqueue appends output to a client's queue. A client whose queue is
// over the byte cap or out of slots is stuck; it is evicted rather
// than allowed to block the master. The unwritten remainder of the
// initial replay does not count against the cap.
func (m *mux) enqueue(client *muxClient, data []byte) {
	if client.queuedBytes-client.replayBytes+len(data) > m.queueMax {
		m.logger.Warn("client over queue cap, evicting", "client", client.id, "queued", client.queuedBytes)
		m.evict(client)
		return
	}
	select {
	case client.queue <- data:
		client.queuedBytes += len(data)
	default:
		m.logger.Warn("client queue full, evicting", "client", client.id)
		m.evict(client)
	}
}

// enqueueFrame encodes and enqueues a control frame.
func (m *mux) enqueueFrame(client *muxClient, frame Frame) {
	encoded, err := EncodeFrame(frame)
	if err != nil {
		return
	}
	m.enqueue(client, encoded)
}

// handleClientEvent applies one event from a client connection.
func (m *mux) handleClientEvent(event clientEvent) {
	client, ok := m.clients[event.id]
	if !ok {
		// Late event from an evicted client.
		return
	}

	switch {
	case event.err != nil:
		// EOF, reset, broken pipe: drop the client, keep the session.
		if !errIsClosed(event.err) {
			m.logger.Warn("client read failed", "client", client.id, "error", event.err)
		}
		m.removeClient(client, false)

	case event.frame != nil:
		m.handleFrame(client, *event.frame)

	case len(event.data) > 0:
		// Input is retained in the backlog until the master writer
		// accepts it; a stalled shell (terminal flow control) is a
		// normal state, not a reason to lose keystrokes.
		if m.inputBacklogBytes+len(event.data) > maxInputBacklogBytes {
			m.logger.Warn("input backlog full, dropping input", "client", client.id, "bytes", len(event.data))
			return
		}
		m.inputBacklog = append(m.inputBacklog, event.data)
		m.inputBacklogBytes += len(event.data)
	}
}

// handleFrame applies a validated control frame from a client.
func (m *mux) handleFrame(client *muxClient, frame Frame) {
	switch frame.Command {
	case CmdResize:
		rows, cols := ResizeDimensions(frame)
		client.rows, client.cols = rows, cols
		m.applyWindowSize()
		m.recorder.RecordResize(rows, cols)

	case CmdDetach:
		m.removeClient(client, true)

	case CmdScrollback:
		m.enqueue(client, m.ring.Tail(NumericArg(frame, 0)))

	case CmdRefresh:
		m.enqueue(client, m.ring.Bytes())

	case CmdClear:
		select {
		case client.clearRequests <- struct{}{}:
		default:
		}

	case CmdAttach, CmdList, CmdKill, CmdSwitch:
		// Reserved for higher-level tools: acknowledge, no action.
		m.enqueueFrame(client, NewOKFrame(len(m.clients)))
	}
}

// removeClient detaches a client. With flush set, the writer drains
// the queue before closing the socket; otherwise the socket closes
// immediately.
func (m *mux) removeClient(client *muxClient, flush bool) {
	delete(m.clients, client.id)
	close(client.queue)
	if !flush {
		client.conn.Close()
	}

	notice := []byte(fmt.Sprintf("\r\n[Client disconnected (total: %d)]\r\n", len(m.clients)))
	for _, peer := range m.clients {
		m.enqueue(peer, notice)
	}

	m.applyWindowSize()
	m.writeStatus(len(m.clients))
	m.recorder.RecordDetach(len(m.clients))
	m.logger.Info("client detached", "client", client.id, "attached", len(m.clients))
}

// evict force-drops a stuck or erroring client: no flush, no
// farewell.
func (m *mux) evict(client *muxClient) {
	if _, ok := m.clients[client.id]; ok {
		m.removeClient(client, false)
	}
}

// applyWindowSize sets the master window to the per-axis minimum of
// all attached clients' dimensions, so every attached terminal sees a
// consistent view. With no clients attached the size is left alone.
// Reapplying an unchanged size is a no-op.
func (m *mux) applyWindowSize() {
	if len(m.clients) == 0 {
		return
	}
	rows, cols := 0, 0
	for _, client := range m.clients {
		if client.rows <= 0 || client.cols <= 0 {
			continue
		}
		if rows == 0 || client.rows < rows {
			rows = client.rows
		}
		if cols == 0 || client.cols < cols {
			cols = client.cols
		}
	}
	if rows == 0 || cols == 0 {
		return
	}
	if rows == m.appliedRows && cols == m.appliedCols {
		return
	}
	if err := m.resize(rows, cols); err != nil {
		m.logger.Warn("resize failed", "rows", rows, "cols", cols, "error", err)
		return
	}
	m.appliedRows, m.appliedCols = rows, cols
	m.logger.Info("window size applied", "rows", rows, "cols", cols)
}

// shutdown notifies clients of session end, flushes within the
// budget, and reports the exit status for the supervisor to
// propagate.
func (m *mux) shutdown(status int) int {
	m.listener.Close()
	m.recorder.RecordExit(status)

	// Best-effort: a client with no queue slot left misses the exit
	// frame but still sees its socket close.
	exitFrame, _ := EncodeFrame(NewExitFrame(status))
	for _, client := range m.clients {
		select {
		case client.queue <- exitFrame:
		default:
		}
		close(client.queue)
	}
	close(m.done)

	// Bounded wait for writers to drain; after the budget expires
	// force the remaining sockets closed.
	deadline := m.clock.After(shutdownFlushBudget)
	expired := false
	for _, client := range m.clients {
		if expired {
			client.conn.Close()
			continue
		}
		select {
		case <-client.writerDone:
		case <-deadline:
			expired = true
			client.conn.Close()
		}
	}
	clear(m.clients)

	m.master.Close()
	m.writeStatus(0)
	return status
}

// awaitShellExit collects the shell's exit status after the master
// has already closed. If the status does not arrive promptly the
// session is in an unrecoverable I/O state: the master is dead but
// the shell will not exit. Status 2 marks that outcome, distinct
// from setup failures (1) and shell statuses.
func (m *mux) awaitShellExit() int {
	m.stopShell()
	select {
	case status := <-m.shellExited:
		return status
	case <-m.clock.After(5 * time.Second):
		m.logger.Error("shell did not report exit status")
		return 2
	}
}

// errIsClosed reports errors that just mean the other side went away.
func errIsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
