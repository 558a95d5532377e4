package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/craftocr/internal/pipeline"
	"github.com/MeKo-Tech/craftocr/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketOCRRequest is the JSON form of a request. A binary frame holding
// the raw image bytes is accepted as well.
type WebSocketOCRRequest struct {
	Type      string `json:"type"` // "image"
	Image     []byte `json:"image,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WebSocketConnWriter is the subset of *websocket.Conn used for replies.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketOCRResponse is sent for every event of a request: "processing"
// once, "region" per recognized region, then "completed" or "error".
type WebSocketOCRResponse struct {
	Type      string                    `json:"type"`
	RequestID string                    `json:"request_id,omitempty"`
	Index     *int                      `json:"index,omitempty"`
	Region    *pipeline.OCRRegionResult `json:"region,omitempty"`
	Result    *pipeline.OCRImageResult  `json:"result,omitempty"`
	Error     string                    `json:"error,omitempty"`
	ErrorType string                    `json:"error_type,omitempty"`
	Stage     string                    `json:"stage,omitempty"`
}

func (s *Server) ocrWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(conn)
}

func (s *Server) handleWebSocketConnection(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		s.handleWebSocketMessage(ctx, conn, messageType, data)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, messageType int, data []byte) {
	req := WebSocketOCRRequest{Type: "image"}
	switch messageType {
	case websocket.BinaryMessage:
		req.Image = data
	case websocket.TextMessage:
		if err := json.Unmarshal(data, &req); err != nil {
			s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err), nil)
			return
		}
	default:
		return
	}
	if req.RequestID == "" {
		req.RequestID = strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	if req.Type != "image" {
		s.sendWebSocketError(conn, req.RequestID, "invalid_request", "Unsupported request type: "+req.Type, nil)
		return
	}
	s.processWebSocketImage(ctx, conn, req)
}

func (s *Server) processWebSocketImage(ctx context.Context, conn WebSocketConnWriter, req WebSocketOCRRequest) {
	if len(req.Image) == 0 {
		s.sendWebSocketError(conn, req.RequestID, "invalid_request", "No image data provided", nil)
		return
	}
	img, _, err := utils.DecodeImage(bytes.NewReader(req.Image))
	if err != nil {
		s.sendWebSocketError(conn, req.RequestID, "invalid_request", fmt.Sprintf("Failed to decode image: %v", err), nil)
		return
	}
	if s.pipeline == nil {
		s.sendWebSocketError(conn, req.RequestID, "unavailable", "OCR pipeline not initialized", nil)
		return
	}

	s.sendWebSocketResponse(conn, WebSocketOCRResponse{Type: "processing", RequestID: req.RequestID})

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := s.pipeline.ProcessImageStream(ctx, img, func(i int, region pipeline.OCRRegionResult) {
		s.sendWebSocketResponse(conn, WebSocketOCRResponse{
			Type:      "region",
			RequestID: req.RequestID,
			Index:     &i,
			Region:    &region,
		})
	})
	if err != nil {
		ocrRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketError(conn, req.RequestID, "processing_error", fmt.Sprintf("OCR processing failed: %v", err), err)
		return
	}
	recordResult("websocket", res, time.Since(start))

	s.sendWebSocketResponse(conn, WebSocketOCRResponse{
		Type:      "completed",
		RequestID: req.RequestID,
		Result:    res,
	})
}

func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketOCRResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string, cause error) {
	resp := WebSocketOCRResponse{
		Type:      "error",
		RequestID: requestID,
		Error:     message,
		ErrorType: errorType,
	}
	var se *pipeline.StageError
	if errors.As(cause, &se) {
		resp.Stage = string(se.Stage)
	}
	s.sendWebSocketResponse(conn, resp)
}
