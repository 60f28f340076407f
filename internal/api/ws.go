package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
	"github.com/reviewlens/reviewlens/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket message types from client.
const (
	wsMsgReview = "review"
)

// WebSocket message types to client.
const (
	wsMsgParsed  = "parsed"
	wsMsgFinding = "finding"
	wsMsgReport  = "report"
	wsMsgError   = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsReportResponse closes a review.
type wsReportResponse struct {
	Outcome int           `json:"outcome"`
	Passed  bool          `json:"passed"`
	Report  *model.Report `json:"report"`
}

// handleWebSocket runs one review per "review" message, streaming the
// parsed files, then each surviving finding, then the final report.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendWSError(conn, "invalid message format")
			continue
		}

		switch msg.Type {
		case wsMsgReview:
			s.handleWSReview(conn, r, msg.Data)
		default:
			s.sendWSError(conn, "unknown message type: "+msg.Type)
		}
	}
}

func (s *Server) handleWSReview(conn *websocket.Conn, r *http.Request, data json.RawMessage) {
	var req reviewRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWSError(conn, "invalid review data")
		return
	}
	if req.Diff == "" {
		s.sendWSError(conn, "diff is required")
		return
	}

	p := s.pipeline(req.FailOn, req.Files)
	p.OnParsed = func(set *diff.Set) {
		s.sendWSMessage(conn, wsMsgParsed, parsedFiles(set))
	}
	p.OnFinding = func(f model.Finding) {
		s.sendWSMessage(conn, wsMsgFinding, f)
	}

	rep, err := p.Run(r.Context(), req.Diff)
	if err != nil {
		s.sendWSError(conn, err.Error())
		return
	}
	s.sendWSMessage(conn, wsMsgReport, wsReportResponse{
		Outcome: int(pipeline.Classify(rep, nil, p.Config.FailOn)),
		Passed:  pipeline.Passed(rep, p.Config.FailOn),
		Report:  rep,
	})
}

func (s *Server) sendWSMessage(conn *websocket.Conn, msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("ws marshal", "error", err)
		return
	}
	msg := wsMessage{Type: msgType, Data: raw}
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("ws write", "error", err)
	}
}

func (s *Server) sendWSError(conn *websocket.Conn, errMsg string) {
	s.sendWSMessage(conn, wsMsgError, map[string]string{"message": errMsg})
}
