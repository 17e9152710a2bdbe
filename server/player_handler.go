package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vibestream/core/player"
	"vibestream/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	wsReadLimit  = 64 << 10
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 64
)

var playerUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PlayerCommand 客户端发送的播放控制指令
type PlayerCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// playerEvent 推送给客户端的消息
type playerEvent struct {
	Type      string        `json:"type"`
	State     *player.State `json:"state,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

var errUnknownCommand = errors.New("unknown command")

func decodeData(cmd *PlayerCommand, v interface{}) error {
	if len(cmd.Data) == 0 {
		return fmt.Errorf("%s: data required", cmd.Type)
	}
	if err := json.Unmarshal(cmd.Data, v); err != nil {
		return fmt.Errorf("%s: %w", cmd.Type, err)
	}
	return nil
}

// applyCommand runs one control command against s.
func applyCommand(s *player.Session, cmd *PlayerCommand) error {
	switch cmd.Type {
	case "play":
		var req struct {
			Song  player.Song   `json:"song"`
			Queue []player.Song `json:"queue"`
		}
		if err := decodeData(cmd, &req); err != nil {
			return err
		}
		if req.Song.ID == "" {
			return fmt.Errorf("play: song id required")
		}
		s.Play(req.Song, req.Queue)
	case "pause":
		s.Pause()
	case "resume":
		s.Resume()
	case "toggle":
		s.Toggle()
	case "next":
		s.Next()
	case "previous":
		s.Previous()
	case "seek":
		var req struct {
			Time float64 `json:"time"`
		}
		if err := decodeData(cmd, &req); err != nil {
			return err
		}
		s.Seek(req.Time)
	case "progress":
		var req struct {
			Time     float64 `json:"time"`
			Duration float64 `json:"duration"`
		}
		if err := decodeData(cmd, &req); err != nil {
			return err
		}
		s.ReportProgress(req.Time, req.Duration)
	case "volume":
		var req struct {
			Volume float64 `json:"volume"`
		}
		if err := decodeData(cmd, &req); err != nil {
			return err
		}
		s.SetVolume(req.Volume)
	case "shuffle":
		s.ToggleShuffle()
	case "repeat":
		s.CycleRepeat()
	case "favorite":
		var req struct {
			IsFavorite bool `json:"isFavorite"`
		}
		if err := decodeData(cmd, &req); err != nil {
			return err
		}
		s.SetFavorite(req.IsFavorite)
	case "setQueue":
		var req struct {
			Songs []player.Song `json:"songs"`
			Start int           `json:"start"`
		}
		if err := decodeData(cmd, &req); err != nil {
			return err
		}
		s.SetQueue(req.Songs, req.Start)
	case "enqueue":
		var req struct {
			Songs []player.Song `json:"songs"`
		}
		if err := decodeData(cmd, &req); err != nil {
			return err
		}
		s.Enqueue(req.Songs...)
	case "remove":
		var req struct {
			Index int `json:"index"`
		}
		if err := decodeData(cmd, &req); err != nil {
			return err
		}
		s.Remove(req.Index)
	case "clear":
		s.Clear()
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, cmd.Type)
	}
	return nil
}

// session resolves the {session} path variable, answering 400 for bad IDs.
func (h *APIHandler) session(w http.ResponseWriter, r *http.Request) (*player.Session, bool) {
	s, err := h.players.Get(r.Context(), mux.Vars(r)["session"])
	if errors.Is(err, player.ErrInvalidSessionID) {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return nil, false
	}
	if err != nil {
		serverError(w, r, "Failed to open player session", err)
		return nil, false
	}
	return s, true
}

// GetPlayerStateHandler 返回播放会话的当前状态
func (h *APIHandler) GetPlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// PlayerCommandHandler 通过 HTTP 执行一条播放控制指令并返回新状态
func (h *APIHandler) PlayerCommandHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var cmd PlayerCommand
	if err := decodeJSON(w, r, maxJSONBody, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := applyCommand(s, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// playerClient 一个订阅播放会话的 WebSocket 连接
type playerClient struct {
	conn    *websocket.Conn
	session *player.Session
	send    chan []byte
}

// push queues ev without blocking. A full buffer drops the event.
func (c *playerClient) push(ev *playerEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("编码播放事件失败", logger.ErrorField(err))
		return
	}
	select {
	case c.send <- data:
	default:
		logger.Debug("播放事件缓冲已满，丢弃消息", logger.String("session", c.session.ID()))
	}
}

// readPump applies incoming commands until the connection fails.
func (c *playerClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("session", c.session.ID()))
			}
			return
		}

		var cmd PlayerCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.push(&playerEvent{Type: "error", Error: "invalid message format"})
			continue
		}
		if cmd.Type == "ping" {
			c.push(&playerEvent{Type: "pong"})
			continue
		}
		if err := applyCommand(c.session, &cmd); err != nil {
			c.push(&playerEvent{Type: "error", Error: err.Error()})
		}
	}
}

// writePump sends queued events and keeps the connection alive with pings.
// It returns when done is closed or a write fails.
func (c *playerClient) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// PlayerSocketHandler 建立播放会话的 WebSocket 连接：推送状态，接收控制指令
func (h *APIHandler) PlayerSocketHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := playerUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := &playerClient{
		conn:    conn,
		session: s,
		send:    make(chan []byte, wsSendBuffer),
	}
	unsubscribe := s.Subscribe(func(st player.State) {
		client.push(&playerEvent{Type: "state", State: &st})
	})

	done := make(chan struct{})
	go client.writePump(done)

	logger.Info("播放会话 WebSocket 连接建立",
		logger.String("session", s.ID()),
		logger.String("remoteAddr", r.RemoteAddr))

	client.readPump()
	unsubscribe()
	close(done)

	logger.Info("播放会话 WebSocket 连接关闭", logger.String("session", s.ID()))
}
