package ring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type SessionBody struct {
	DoorbotID int    `json:"doorbot_id"`
	SessionID string `json:"session_id,omitempty"`
}

// Message is a signaling message with not parsed body
type Message struct {
	Method   string          `json:"method"`
	DialogID string          `json:"dialog_id,omitempty"`
	Body     json.RawMessage `json:"body"`
}

type AnswerBody struct {
	SessionBody
	SDP  string `json:"sdp"`
	Type string `json:"type"` // "answer"
}

type ICEBody struct {
	SessionBody
	ICE        string `json:"ice"`
	MLineIndex uint16 `json:"mlineindex"`
}

type CloseBody struct {
	SessionBody
	Reason struct {
		Code int    `json:"code"`
		Text string `json:"text"`
	} `json:"reason"`
}

// Close reason codes
const (
	CloseReasonNormalClose          = 0
	CloseReasonAuthenticationFailed = 5
	CloseReasonTimeout              = 6
)

// Signaling is the websocket of one live view dialog with one camera
type Signaling struct {
	conn      *websocket.Conn
	doorbotID int
	dialogID  string

	mu        sync.Mutex
	sessionID string
}

func DialSignaling(ctx context.Context, endpoint, ticket string, doorbotID int) (*Signaling, error) {
	query := url.Values{
		"api_version": {"4.0"},
		"auth_type":   {"ring_solutions"},
		"client_id":   {"ring_site-" + uuid.NewString()},
		"token":       {ticket},
	}

	header := http.Header{"User-Agent": {userAgent}}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint+"?"+query.Encode(), header)
	if err != nil {
		return nil, err
	}

	return &Signaling{conn: conn, doorbotID: doorbotID, dialogID: uuid.NewString()}, nil
}

func (s *Signaling) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Send adds doorbot and session ids to the body
func (s *Signaling) Send(method string, body map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if body == nil {
		body = map[string]any{}
	}

	body["doorbot_id"] = s.doorbotID
	if s.sessionID != "" {
		body["session_id"] = s.sessionID
	}

	return s.conn.WriteJSON(map[string]any{
		"method":    method,
		"dialog_id": s.dialogID,
		"body":      body,
	})
}

// Read returns the next message of this camera and session,
// messages of other cameras and sessions are skipped
func (s *Signaling) Read() (*Message, error) {
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			return nil, err
		}

		if s.accept(&msg) {
			return &msg, nil
		}
	}
}

func (s *Signaling) accept(msg *Message) bool {
	var body struct {
		DoorbotID *int    `json:"doorbot_id"`
		SessionID *string `json:"session_id"`
	}
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return false
	}

	if body.DoorbotID == nil || *body.DoorbotID != s.doorbotID {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if body.SessionID == nil {
		return true
	}

	// first session id from the server wins
	if s.sessionID == "" && (msg.Method == "session_created" || msg.Method == "session_started") {
		s.sessionID = *body.SessionID
	}

	return *body.SessionID == s.sessionID
}

func (s *Signaling) Close() error {
	_ = s.Send("close", map[string]any{
		"reason": map[string]any{"code": CloseReasonNormalClose, "text": ""},
	})
	return s.conn.Close()
}
