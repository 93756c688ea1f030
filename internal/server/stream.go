package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/coder/websocket"

	"github.com/claude/posereps/internal/session"
)

// wsTransport adapts a websocket connection to session.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Receive(ctx context.Context) (session.Message, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return session.Message{}, fmt.Errorf("%w: %v", session.ErrClientClosed, err)
		}
		if ctx.Err() != nil {
			return session.Message{}, ctx.Err()
		}
		return session.Message{}, fmt.Errorf("%w: %v", session.ErrClosed, err)
	}
	kind := session.BinaryMessage
	if typ == websocket.MessageText {
		kind = session.TextMessage
	}
	return session.Message{Kind: kind, Data: data}, nil
}

func (t *wsTransport) SendText(ctx context.Context, text string) error {
	return t.conn.Write(ctx, websocket.MessageText, []byte(text))
}

func (t *wsTransport) SendBinary(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}

func (t *wsTransport) Close(reason string) error {
	err := t.conn.Close(websocket.StatusNormalClosure, reason)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// handleAnalyze upgrades the request and runs one analysis session on it.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	if s.stream.ReadLimit > 0 {
		conn.SetReadLimit(s.stream.ReadLimit)
	}

	s.live.Add(1)
	defer s.live.Done()

	ctrl := session.New(s.stream.Session, &wsTransport{conn: conn})
	if _, err := ctrl.Run(s.sessionCtx); err != nil {
		s.log.Info("session not started", "session_id", ctrl.ID(), "error", err)
	}
}
