package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Clients only send close frames.
	maxMessageSize = 512
)

// Event types sent on the export stream.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one message on the export stream.
type Event struct {
	Type     string  `json:"type"`
	Progress float64 `json:"progress,omitempty"`
	Filename string  `json:"filename,omitempty"`
	// PDF is the base64-encoded document, sent with the complete event.
	PDF   string `json:"pdf,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// Auth is enforced by the bearer token; the app is served from several
	// branch origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// exportWS runs one export and streams its progress. The export is
// cancelled when the client goes away.
func (s *Server) exportWS(w http.ResponseWriter, r *http.Request) {
	opts, err := exportOptions(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading is required to process control frames; any read error means
	// the client is gone.
	conn.SetReadLimit(maxMessageSize)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var mu sync.Mutex
	send := func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			s.log.Debug("websocket write failed", zap.Error(err))
			cancel()
		}
	}

	opts.Progress = func(v float64) {
		send(Event{Type: EventProgress, Progress: v})
	}
	res, err := s.exp.ExportByID(ctx, chi.URLParam(r, "id"), opts)
	if err != nil {
		_, body := errorStatus(err)
		send(Event{Type: EventError, Error: body.Error, Code: body.Code})
	} else {
		send(Event{
			Type:     EventComplete,
			Progress: 1,
			Filename: res.Filename,
			PDF:      base64.StdEncoding.EncodeToString(res.PDF),
		})
	}

	mu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	mu.Unlock()
}
