package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Signaler is the client's view of the signaling channel: an ordered event
// stream plus a send path. Tests substitute an in-memory implementation.
type Signaler interface {
	Send(protocol.Envelope) error
	Incoming() <-chan protocol.Envelope
	Close()
}

// Socket is the websocket Signaler used against a real server.
type Socket struct {
	conn     *websocket.Conn
	incoming chan protocol.Envelope
	outgoing chan protocol.Envelope
	done     chan struct{}
	once     sync.Once
}

// Dial connects to the server's signaling endpoint and starts the pumps.
func Dial(serverURL string) (*Socket, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s := &Socket{
		conn:     conn,
		incoming: make(chan protocol.Envelope, 16),
		outgoing: make(chan protocol.Envelope, 16),
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readPump()
	go s.writePump()
	return s, nil
}

func (s *Socket) readPump() {
	defer func() {
		_ = s.conn.Close()
		close(s.incoming)
	}()
	for {
		var env protocol.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			log.Debug().Err(err).Str("module", "client").Msg("socket read done")
			return
		}
		s.incoming <- env
	}
}

func (s *Socket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case env := <-s.outgoing:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Str("module", "client").Msg("socket write error")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Socket) Send(env protocol.Envelope) error {
	select {
	case s.outgoing <- env:
		return nil
	case <-s.done:
		return fmt.Errorf("socket closed")
	}
}

func (s *Socket) Incoming() <-chan protocol.Envelope { return s.incoming }

func (s *Socket) Close() {
	s.once.Do(func() { close(s.done) })
}

// signalSender adapts a Signaler to peer.Sender.
type signalSender struct{ sig Signaler }

func (s signalSender) SendSignal(to domain.ConnID, typ string, payload json.RawMessage) error {
	return s.sig.Send(protocol.Envelope{Type: typ, To: to, Payload: payload})
}
