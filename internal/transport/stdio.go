// Package transport implements the two line-oriented frontends from §4.13:
// stdio (one JSON-RPC message per line) and WebSocket (one JSON-RPC
// message per text frame), both driving the same mcpserver.Router and
// notify.Bus.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kadirpekel/chessmcp/internal/agentreg"
	"github.com/kadirpekel/chessmcp/internal/mcpserver"
	"github.com/kadirpekel/chessmcp/internal/notify"
)

const maxLineBytes = 1 << 20 // 1 MiB, generous for a JSON-RPC frame

// Stdio serves one JSON-RPC connection over the process's stdin/stdout,
// one message per line, exiting on EOF.
type Stdio struct {
	Router  *mcpserver.Router
	Agents  *agentreg.Registry
	Notify  *notify.Bus
	Log     *slog.Logger
	Reader  io.Reader
	Writer  io.Writer
}

// Serve registers a single stdio agent and processes lines until ctx is
// canceled or the reader hits EOF. It runs the notification pump and the
// request loop concurrently, sharing a writer mutex.
func (s *Stdio) Serve(ctx context.Context) error {
	agent, err := s.Agents.Register(agentreg.ClientInfo{Name: "stdio-client"}, "stdio")
	if err != nil {
		return fmt.Errorf("transport: registering stdio agent: %w", err)
	}
	defer s.Agents.Remove(agent.ID)

	notifications := s.Notify.Subscribe(agent.ID)
	defer s.Notify.Unsubscribe(agent.ID)

	var writeMu sync.Mutex
	writeLine := func(b []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := s.Writer.Write(append(b, '\n')); err != nil {
			return err
		}
		return nil
	}

	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case n, ok := <-notifications:
				if !ok {
					return
				}
				b := mcpserver.EncodeNotification(n)
				if b != nil {
					_ = writeLine(b)
				}
			case <-pumpCtx.Done():
				return
			}
		}
	}()

	scanner := bufio.NewScanner(s.Reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := append([]byte(nil), line...)
		resp := s.Router.Handle(ctx, agent.ID, "stdio", frame)
		if resp != nil {
			if err := writeLine(resp); err != nil {
				stopPump()
				<-done
				return err
			}
		}
	}
	stopPump()
	<-done
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("transport: stdio read: %w", err)
	}
	return nil
}
