// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/novatechflow/minikaf/pkg/protocol"
)

// Handler turns one request frame payload into one response frame payload.
// Returning a *protocol.Error asks the server to answer with an error frame
// and keep the connection open.
type Handler interface {
	Handle(ctx context.Context, payload []byte) ([]byte, error)
}

// Server accepts Kafka protocol connections and serves each one on its own
// goroutine, one request at a time.
type Server struct {
	Addr    string
	Handler Handler
	Logger  *slog.Logger
	Metrics *Metrics

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// ListenAndServe starts accepting Kafka protocol connections. It returns nil
// once ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Handler == nil {
		return errors.New("broker.Server requires a Handler")
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger().Info("broker listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger().Warn("accept timeout", "error", err)
				continue
			}
			return err
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}
}

// Wait blocks until all connection goroutines exit.
func (s *Server) Wait() {
	s.wg.Wait()
}

// ListenAddress returns the actual listener address if the server has started.
func (s *Server) ListenAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.Addr
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	logger := s.logger().With("remote", remoteAddr(conn))
	s.Metrics.connectionOpened()
	defer s.Metrics.connectionClosed()
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			logger.Warn("read frame", "error", err)
			return
		}
		resp, err := s.Handler.Handle(ctx, frame.Payload)
		if err != nil {
			var perr *protocol.Error
			if !errors.As(err, &perr) {
				logger.Error("handle request", "error", err, "payload_bytes", len(frame.Payload))
				return
			}
			logger.Debug("protocol error", "correlation_id", perr.CorrelationID, "code", protocol.ErrorName(perr.Code))
			if err := protocol.WriteErrorFrame(conn, perr); err != nil {
				logger.Warn("write error frame", "error", err)
				return
			}
			continue
		}
		if err := protocol.WriteFrame(conn, resp); err != nil {
			logger.Warn("write frame", "error", err)
			return
		}
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
