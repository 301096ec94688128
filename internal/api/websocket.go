package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are already filtered by the CORS layer for REST; the quote
		// stream carries no user data so all origins are accepted here.
		return true
	},
}

const (
	quotePushInterval = 10 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsReadTimeout     = 60 * time.Second
)

// quoteStreamMessage is one websocket frame on /ws
type quoteStreamMessage struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// handleQuoteStream serves GET /ws?symbol=, pushing a fresh quote every
// quotePushInterval until the client disconnects.
func (s *Server) handleQuoteStream(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		badRequest(c, "missing_symbol", "query parameter 'symbol' is required")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go readUntilClose(conn, done)

	writeFrame(conn, quoteStreamMessage{
		Type:      "connected",
		Symbol:    symbol,
		Message:   "quote stream established",
		Timestamp: time.Now().UTC(),
	})

	ticker := time.NewTicker(quotePushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
			quote, err := s.deps.Source.GetQuote(ctx, symbol)
			cancel()

			var msg quoteStreamMessage
			if err != nil {
				msg = quoteStreamMessage{
					Type:      "error",
					Symbol:    symbol,
					Message:   "quote fetch failed",
					Timestamp: time.Now().UTC(),
				}
			} else {
				msg = quoteStreamMessage{
					Type:      "quote",
					Symbol:    symbol,
					Data:      quote,
					Timestamp: time.Now().UTC(),
				}
			}
			if !writeFrame(conn, msg) {
				return
			}
		}
	}
}

// readUntilClose drains the connection so pings and close frames are
// processed, closing done when the client goes away.
func readUntilClose(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

func writeFrame(conn *websocket.Conn, msg quoteStreamMessage) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg) == nil
}
