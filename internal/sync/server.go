package sync

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Authenticator maps the token a TCP client sends on its first line to the
// session it may watch.
type Authenticator func(ctx context.Context, token string) (sessionID string, err error)

type Server struct {
	Addr string
	Hub  *Hub
	Auth Authenticator

	log zerolog.Logger
}

func NewServer(addr string, hub *Hub, auth Authenticator, log zerolog.Logger) *Server {
	return &Server{Addr: addr, Hub: hub, Auth: auth, log: log.With().Str("component", "tcp-sync").Logger()}
}

// Run accepts clients until ctx is done. Each client must send its session
// token as the first line; afterwards incoming lines are ignored.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, c net.Conn) {
	sc := bufio.NewScanner(c)

	_ = c.SetReadDeadline(time.Now().Add(10 * time.Second))
	if !sc.Scan() {
		_ = c.Close()
		return
	}
	_ = c.SetReadDeadline(time.Time{})

	sessionID, err := s.Auth(ctx, strings.TrimSpace(sc.Text()))
	if err != nil {
		_, _ = c.Write([]byte(`{"type":"error","error":"unauthorized"}` + "\n"))
		_ = c.Close()
		s.log.Debug().Err(err).Str("remote", c.RemoteAddr().String()).Msg("client rejected")
		return
	}

	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, _ = c.Write(s.Hub.welcome("tcp", sessionID))
	s.Hub.Add(c, sessionID)
	s.log.Info().Str("remote", c.RemoteAddr().String()).Str("session", sessionID).Msg("client connected")

	defer func() {
		s.Hub.Remove(c)
		s.log.Info().Str("remote", c.RemoteAddr().String()).Msg("client disconnected")
	}()

	// Keep the connection alive; if client sends anything, just consume.
	for sc.Scan() {
	}
}
