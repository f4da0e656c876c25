package lspserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Exit codes per the external-interface contract.
const (
	ExitClean       = 0
	ExitError       = 1
	ExitUnsupported = 2
)

// StdioConn runs the Content-Length framed JSON-RPC loop over a reader
// and writer pair (stdin/stdout in production, pipes in tests). Writes
// are serialised; requests dispatch concurrently on the shared runtime,
// none pinned to a thread.
type StdioConn struct {
	server *Server
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  io.Writer
}

// NewStdioConn wires a connection to a server.
func NewStdioConn(server *Server, r io.Reader, w io.Writer) *StdioConn {
	conn := &StdioConn{
		server: server,
		reader: bufio.NewReader(r),
		writer: w,
	}
	server.notifier = conn
	return conn
}

// Notify implements Notifier: a server-initiated notification.
func (c *StdioConn) Notify(method string, params any) {
	raw, err := json.Marshal(params)
	if err != nil {
		slog.Error("marshal notification", slog.String("method", method), slog.String("error", err.Error()))
		return
	}
	c.writeMessage(Message{JSONRPC: "2.0", Method: method, Params: raw})
}

// Run reads messages until EOF, the exit notification, or context
// cancellation. The returned code follows the exit-code contract: 0
// after shutdown+exit, 1 on transport error or exit without shutdown.
func (c *StdioConn) Run(ctx context.Context) int {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return ExitClean
		}

		msg, err := c.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Transport loss without exit: error path.
				if c.server.ShuttingDown() {
					return ExitClean
				}
				return ExitError
			}
			slog.Error("read message", slog.String("error", err.Error()))
			return ExitError
		}

		if msg.JSONRPC != "" && msg.JSONRPC != "2.0" {
			return ExitUnsupported
		}

		if msg.Method == "exit" {
			if c.server.ShuttingDown() {
				return ExitClean
			}
			return ExitError
		}

		if msg.ID == nil {
			// Notification: dispatch inline; ordering per URI matters
			// for text sync, and the transport delivers in order.
			c.server.Dispatch(ctx, msg.Method, msg.Params)
			continue
		}

		if msg.Method == "shutdown" {
			// Shutdown must be observed before a following exit, so it
			// replies inline rather than racing on a goroutine.
			result, rpcErr := c.server.Dispatch(ctx, msg.Method, msg.Params)
			reply := Message{JSONRPC: "2.0", ID: msg.ID, Result: result, Error: rpcErr}
			c.writeMessage(reply)
			continue
		}

		// Request: dispatch concurrently, reply when done.
		request := msg
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, rpcErr := c.server.Dispatch(ctx, request.Method, request.Params)
			reply := Message{JSONRPC: "2.0", ID: request.ID}
			if rpcErr != nil {
				reply.Error = rpcErr
			} else {
				reply.Result = result
			}
			c.writeMessage(reply)
		}()
	}
}

// readMessage reads one Content-Length framed message.
func (c *StdioConn) readMessage() (*Message, error) {
	contentLength := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if name, value, found := strings.Cut(line, ":"); found {
			if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
				n, convErr := strconv.Atoi(strings.TrimSpace(value))
				if convErr != nil {
					return nil, fmt.Errorf("bad Content-Length: %w", convErr)
				}
				contentLength = n
			}
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	return &msg, nil
}

// writeMessage frames and writes one message.
func (c *StdioConn) writeMessage(msg Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal message", slog.String("error", err.Error()))
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		slog.Error("write header", slog.String("error", err.Error()))
		return
	}
	if _, err := c.writer.Write(body); err != nil {
		slog.Error("write body", slog.String("error", err.Error()))
	}
}
