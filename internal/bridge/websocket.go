package bridge

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// ServeWebSocket attaches a host over a websocket. Every text message is one
// event and every command goes out as one text message. Only one host can be
// attached at a time; others get 409.
func (a *Adapter) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	if !a.attach() {
		http.Error(w, ErrHostAttached.Error(), http.StatusConflict)
		return
	}
	defer a.detach()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxEventSize)
	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		log.Printf("[Bridge] ws set read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case cmd, ok := <-a.out:
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"),
						time.Now().Add(wsWriteWait))
					return
				}
				data, err := EncodeCommand(cmd)
				if err != nil {
					log.Printf("[Bridge] encode %s: %v", cmd.CommandType(), err)
					continue
				}
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	log.Printf("[Bridge] host attached from %s", r.RemoteAddr)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Bridge] ws read: %v", err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		a.handleRaw(ctx, data)
	}
	cancel()
	<-writerDone
	log.Printf("[Bridge] host detached")
}
