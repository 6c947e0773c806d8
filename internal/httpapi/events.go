package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventWriteWait = 5 * time.Second
	eventPongWait  = 60 * time.Second
	eventPingEvery = eventPongWait * 9 / 10
)

// events streams provider events to a websocket client as JSON frames. The
// client sends nothing; its reads only serve to notice the close.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := RequestLogger(r.Context())
	ch, unsubscribe := h.w.Subscribe(h.opts.EventBuffer)
	defer unsubscribe()
	log.Info().Msg("event subscriber connected")

	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingEvery)
	defer ping.Stop()
	sent := 0
	for {
		select {
		case <-closed:
			log.Info().Int("sent", sent).Msg("event subscriber left")
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "provider disposed"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(EventMessage{Kind: ev.Kind.String(), Pos: ev.Pos}); err != nil {
				log.Debug().Err(err).Msg("event write failed")
				return
			}
			sent++
		}
	}
}
