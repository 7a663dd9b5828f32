package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/deskline/support-chat/internal/chat"
	"github.com/deskline/support-chat/internal/notify"
)

// handleEvents upgrades to WebSocket and streams notify events to an agent.
// It is an optional lower-latency alternative to polling and carries the
// exact same at-least-once events; a client that misses or duplicates
// frames loses nothing, since state always comes from re-polling the API.
func (s *Server) handleEvents(c *gin.Context) {
	caller := callerIdentity(c)
	if !caller.IsAgent() {
		respondError(c, chat.ErrAccessDenied)
		return
	}
	if s.broker == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "push_disabled",
			"message": "no push transport configured, use polling",
		})
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		log.Printf("[httpapi] ws upgrade for agent=%s: %v", caller.UserID, err)
		return
	}

	// Buffered so a slow client drops events instead of stalling the
	// broker callback; dropped events resurface on the client's next poll.
	events := make(chan notify.Event, 64)
	unsubscribe, err := s.broker.SubscribeEvents(func(e notify.Event) {
		select {
		case events <- e:
		default:
		}
	})
	if err != nil {
		log.Printf("[httpapi] ws subscribe for agent=%s: %v", caller.UserID, err)
		conn.Close()
		return
	}

	// Reader goroutine: we expect no frames from the client, but reading
	// is how close frames and dead peers are detected.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := wsutil.ReadClientText(conn); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			unsubscribe()
			conn.Close()
		}()
		for {
			select {
			case <-done:
				return
			case event := <-events:
				data, err := json.Marshal(event)
				if err != nil {
					log.Printf("[httpapi] ws marshal event: %v", err)
					continue
				}
				if err := wsutil.WriteServerMessage(conn, ws.OpText, data); err != nil {
					if err != io.EOF {
						log.Printf("[httpapi] ws write to agent=%s: %v", caller.UserID, err)
					}
					return
				}
			}
		}
	}()
}
