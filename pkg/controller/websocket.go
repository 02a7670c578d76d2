package controller

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spool-learn/interview/pkg/model"
	"github.com/spool-learn/interview/pkg/usecase/interview"
	"github.com/spool-learn/interview/pkg/utils/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second

	// maxAudioFrame bounds one utterance: 60 seconds of 16 kHz PCM16.
	maxAudioFrame = 60 * model.DefaultSampleRate * 2
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect cross-origin; authorization happens at
	// session start, the socket is keyed by session ID.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is a JSON control message in either direction. Binary frames
// carry raw little-endian PCM16 audio, one complete utterance per frame.
type wsMessage struct {
	Type string `json:"type"`

	// server -> client
	Text     string                `json:"text,omitempty"`
	Interest *model.InterestRecord `json:"interest,omitempty"`
	Stage    model.Stage           `json:"stage,omitempty"`
	Results  map[string]any        `json:"results,omitempty"`
	Error    string                `json:"error,omitempty"`

	// client -> server, for text-mode turns
	Content string `json:"content,omitempty"`
}

// wsConn serializes writes to one WebSocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) writeBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// handleWebSocket runs the audio conversation loop for one session. The
// client sends one binary frame per utterance and receives the transcripts,
// interest notifications and the synthesized reply audio.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if _, err := s.engine.GetStatus(r.Context(), id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.From(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	logger := logging.From(r.Context()).With("session_id", id)
	ctx := logging.With(r.Context(), logger)

	raw.SetReadLimit(maxAudioFrame)
	raw.SetReadDeadline(time.Now().Add(wsPongTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		msgType, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			result, err := s.engine.SubmitAudioTurn(ctx, id, decodePCM(data))
			if !deliverTurn(conn, result, err) {
				return
			}

		case websocket.TextMessage:
			var msg wsMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				conn.writeJSON(wsMessage{Type: "error", Error: "invalid message"})
				continue
			}

			switch msg.Type {
			case "text_turn":
				result, err := s.engine.SubmitTextTurn(ctx, id, msg.Content)
				if !deliverTurn(conn, result, err) {
					return
				}
			case "end_interview":
				results, err := s.engine.EndSession(ctx, id)
				if err != nil {
					conn.writeJSON(wsMessage{Type: "error", Error: err.Error()})
					return
				}
				conn.writeJSON(wsMessage{Type: "interview_ended", Results: resultsBody(results)})
				return
			default:
				conn.writeJSON(wsMessage{Type: "error", Error: "unknown message type"})
			}
		}
	}
}

// deliverTurn sends one turn's outcome over the socket. It reports whether
// the conversation loop should keep running.
func deliverTurn(conn *wsConn, result *interview.TurnResult, err error) bool {
	if err != nil {
		conn.writeJSON(wsMessage{Type: "error", Error: "turn failed"})
		// Session gone means the socket has no further use.
		return false
	}
	if result.Silent {
		return true
	}

	if result.UserText != "" {
		conn.writeJSON(wsMessage{Type: "user_transcript", Text: result.UserText, Stage: result.Stage})
	}
	for i := range result.NewInterests {
		conn.writeJSON(wsMessage{Type: "interest_detected", Interest: &result.NewInterests[i]})
	}
	if result.AssistantText != "" {
		conn.writeJSON(wsMessage{Type: "assistant_transcript", Text: result.AssistantText, Stage: result.Stage})
	}
	if !result.Audio.Empty() {
		if err := conn.writeBinary(encodePCM(result.Audio)); err != nil {
			return false
		}
	}
	return true
}

// decodePCM converts a little-endian PCM16 frame into an audio segment at
// the default sample rate.
func decodePCM(data []byte) model.AudioSegment {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return model.AudioSegment{SampleRate: model.DefaultSampleRate, Samples: samples}
}

// encodePCM converts an audio segment into a little-endian PCM16 frame.
func encodePCM(segment model.AudioSegment) []byte {
	data := make([]byte, len(segment.Samples)*2)
	for i, s := range segment.Samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
