package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	gmux "github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain/ports"
)

const (
	// Time allowed to write a frame to the peer.
	terminalWriteWait = 15 * time.Second

	// Maximum control/input frame size accepted from the peer.
	terminalMaxFrame = 64 * 1024

	// PTY read buffer size per output frame.
	terminalReadBuf = 4096
)

var terminalUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Single-user tool bound to loopback; origin enforcement is left
		// to the reverse proxy when one is deployed.
		return true
	},
}

// terminalControl is the text-frame control message from the client.
// Binary frames carry raw keystrokes and bypass this.
type terminalControl struct {
	Type string `json:"type"`
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// handleTerminal bridges a WebSocket connection to a mux session's
// pseudo-terminal. Attach failures surface as plain HTTP errors before
// the upgrade so clients see a status code rather than a dropped socket.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	name := gmux.Vars(r)["name"]

	size := ports.TerminalSize{
		Rows: uint16(queryInt(r, "rows", 0)),
		Cols: uint16(queryInt(r, "cols", 0)),
	}

	pipe, err := s.muxCtl.Attach(name, size)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := terminalUpgrader.Upgrade(w, r, nil)
	if err != nil {
		pipe.Close()
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	log.Info().Str("mux_name", name).Msg("terminal attached")

	bridge := &terminalBridge{conn: conn, pipe: pipe, name: name}
	bridge.run()
}

// terminalBridge pumps bytes between one WebSocket connection and one
// terminal pipe until either side closes.
type terminalBridge struct {
	conn *websocket.Conn
	pipe ports.TerminalPipe
	name string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (b *terminalBridge) run() {
	done := make(chan struct{})
	go func() {
		b.readPump()
		close(done)
	}()
	b.writePump()
	<-done
	b.close()
}

// readPump consumes client frames: binary frames are terminal input,
// text frames are control messages.
func (b *terminalBridge) readPump() {
	defer b.close()
	b.conn.SetReadLimit(terminalMaxFrame)

	for {
		msgType, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("mux_name", b.name).Msg("terminal websocket closed")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if _, err := b.pipe.Write(data); err != nil {
				log.Debug().Err(err).Str("mux_name", b.name).Msg("terminal input write failed")
				return
			}

		case websocket.TextMessage:
			var ctl terminalControl
			if err := json.Unmarshal(data, &ctl); err != nil {
				log.Debug().Err(err).Msg("ignoring malformed terminal control frame")
				continue
			}
			if ctl.Type == "resize" && ctl.Rows > 0 && ctl.Cols > 0 {
				if err := b.pipe.Resize(ports.TerminalSize{Rows: ctl.Rows, Cols: ctl.Cols}); err != nil {
					log.Debug().Err(err).Str("mux_name", b.name).Msg("terminal resize failed")
				}
			}
		}
	}
}

// writePump streams terminal output to the client as binary frames.
func (b *terminalBridge) writePump() {
	defer b.close()
	buf := make([]byte, terminalReadBuf)

	for {
		n, err := b.pipe.Read(buf)
		if n > 0 {
			b.writeMu.Lock()
			b.conn.SetWriteDeadline(time.Now().Add(terminalWriteWait))
			werr := b.conn.WriteMessage(websocket.BinaryMessage, buf[:n])
			b.writeMu.Unlock()
			if werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Str("mux_name", b.name).Msg("terminal read ended")
			}
			b.writeMu.Lock()
			b.conn.SetWriteDeadline(time.Now().Add(terminalWriteWait))
			b.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "terminal closed"))
			b.writeMu.Unlock()
			return
		}
	}
}

func (b *terminalBridge) close() {
	b.closeOnce.Do(func() {
		b.pipe.Close()
		b.conn.Close()
		log.Debug().Str("mux_name", b.name).Msg("terminal detached")
	})
}
