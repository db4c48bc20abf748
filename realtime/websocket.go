package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"livefeed/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	wsReadBufferSize  = 1024        // 1KB, clients only send control frames
	wsWriteBufferSize = 1024 * 1024 // 1MB
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
)

// wsFrame is the JSON envelope pushed to websocket subscribers.
type wsFrame struct {
	Event string           `json:"event"`
	Data  models.PostEvent `json:"data"`
}

// WSServer serves the websocket front-end of the notification publisher on
// its own listener, next to the HTTP API.
type WSServer struct {
	srv      *http.Server
	upgrader websocket.Upgrader
}

func NewWSServer(addr string, allowOrigin string) *WSServer {
	ws := &WSServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsReadBufferSize,
			WriteBufferSize: wsWriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowOrigin
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.handle)
	ws.srv = &http.Server{Addr: addr, Handler: mux}
	return ws
}

func (ws *WSServer) ListenAndServe() error {
	log.WithFields(log.Fields{"addr": ws.srv.Addr}).Info("Starting websocket listener")
	err := ws.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (ws *WSServer) Shutdown(ctx context.Context) error {
	return ws.srv.Shutdown(ctx)
}

func (ws *WSServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Error upgrading websocket connection: %v", err)
		return
	}

	key := uuid.New().String()
	events := make(chan models.PostEvent, 10) // Buffered channel
	Get().AddClient(key, events)

	setupConnectionHandlers(conn)

	// Reader goroutine: clients never send data frames, but reading is
	// required to process control frames and notice closed connections.
	go func() {
		defer Get().RemoveClient(key)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("Unexpected websocket close for client %s: %v", key, err)
				}
				return
			}
		}
	}()

	go ws.writeLoop(key, conn, events)
}

func (ws *WSServer) writeLoop(key string, conn *websocket.Conn, events chan models.PostEvent) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-ticker.C:
			log.Debug("Sending ping to check connection")
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Warnf("Ping failed for client %s, closing connection: %v", key, err)
				return
			}

		case event, ok := <-events:
			if !ok {
				log.Warnf("Event channel closed for client %s", key)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}

			payload, err := json.Marshal(wsFrame{Event: "posts", Data: event})
			if err != nil {
				log.Errorf("Error marshalling event for client %s: %v", key, err)
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warnf("Failed to send event to client %s: %v", key, err)
				return
			}
		}
	}
}

// setupConnectionHandlers configures the websocket connection handlers
func setupConnectionHandlers(conn *websocket.Conn) {
	// Set initial deadline
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	// Add connection close handler
	conn.SetCloseHandler(func(code int, text string) error {
		log.Infof("WebSocket connection closed with code %d: %s", code, text)
		return nil
	})

	// Set ping handler
	conn.SetPingHandler(func(appData string) error {
		log.Debug("Received ping from client")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	// Set pong handler
	conn.SetPongHandler(func(appData string) error {
		log.Debug("Received pong from client")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
}
