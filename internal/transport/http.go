// Package transport exposes the turn service over HTTP, WebSocket and NATS.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/pipeline"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// maxRequestBodySize caps chat request bodies (1MB).
const maxRequestBodySize = 1 << 20

// TurnService is the turn entry point the transports call into.
type TurnService interface {
	ProcessTurn(ctx context.Context, req models.TurnRequest) *models.FinalResponse
	History(ctx context.Context, sessionID string) ([]models.Message, error)
	ClearSession(ctx context.Context, sessionID string) error
	ActiveSessions() int
}

type HTTPServer struct {
	service     TurnService
	turnTimeout time.Duration
	logger      *zap.Logger
}

// NewHTTPServer returns the HTTP API. turnTimeout bounds each turn; zero leaves it to the request context.
func NewHTTPServer(service TurnService, turnTimeout time.Duration, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, turnTimeout: turnTimeout, logger: logger}
}

// Router returns the chi router with every route registered.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/business-types", s.handleBusinessTypes)
		r.Route("/chat", func(r chi.Router) {
			r.Post("/message", s.handleMessage)
			r.Get("/history/{session_id}", s.handleHistory)
			r.Delete("/history/{session_id}", s.handleClearHistory)
			r.Get("/ws/{session_id}", s.handleWebSocket)
		})
	})
	return r
}

func (s *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest,
			pipeline.ErrorResponse(req.SessionID, "Invalid request format", models.ErrorInvalidRequest))
		return
	}

	ctx, cancel := s.turnContext(r.Context())
	defer cancel()

	resp := s.service.ProcessTurn(ctx, req)
	status := http.StatusOK
	if code, _ := resp.Metadata["error_code"].(string); code == models.ErrorInvalidRequest {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

type historyResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []models.Message `json:"messages"`
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	messages, err := s.service.History(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to load history", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError,
			pipeline.ErrorResponse(sessionID, err.Error(), models.ErrorInternal))
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Messages: messages})
}

func (s *HTTPServer) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	if err := s.service.ClearSession(r.Context(), sessionID); err != nil {
		s.logger.Error("failed to clear session", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError,
			pipeline.ErrorResponse(sessionID, err.Error(), models.ErrorInternal))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "session_id": sessionID})
}

type businessTypeInfo struct {
	Type         models.BusinessType `json:"business_type"`
	QuickReplies []string            `json:"quick_replies"`
}

func (s *HTTPServer) handleBusinessTypes(w http.ResponseWriter, _ *http.Request) {
	out := make([]businessTypeInfo, 0, len(models.BusinessTypes))
	for _, bt := range models.BusinessTypes {
		out = append(out, businessTypeInfo{Type: bt, QuickReplies: config.BusinessFor(bt).QuickReplies})
	}
	writeJSON(w, http.StatusOK, map[string]any{"business_types": out})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.service.ActiveSessions(),
	})
}

// wsTurn is one inbound WebSocket frame. The session comes from the URL.
type wsTurn struct {
	Message      string              `json:"message"`
	UserID       string              `json:"user_id,omitempty"`
	BusinessType models.BusinessType `json:"business_type,omitempty"`
	Context      map[string]any      `json:"context,omitempty"`
}

func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("failed to accept websocket", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			s.logger.Debug("failed to close websocket", zap.String("session_id", sessionID), zap.Error(closeErr))
		}
	}()

	s.logger.Info("websocket connected", zap.String("session_id", sessionID))
	ctx := r.Context()

	for {
		// an undecodable frame closes the connection with StatusInvalidFramePayloadData
		var in wsTurn
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				s.logger.Info("websocket closed", zap.String("session_id", sessionID))
				return
			}
			s.logger.Warn("websocket read failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}

		turnCtx, cancel := s.turnContext(ctx)
		resp := s.service.ProcessTurn(turnCtx, models.TurnRequest{
			SessionID:    sessionID,
			UserID:       in.UserID,
			Message:      in.Message,
			BusinessType: in.BusinessType,
			Context:      in.Context,
		})
		cancel()

		if err := wsjson.Write(ctx, ws, resp); err != nil {
			s.logger.Warn("websocket write failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
	}
}

func (s *HTTPServer) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.turnTimeout > 0 {
		return context.WithTimeout(ctx, s.turnTimeout)
	}
	return context.WithCancel(ctx)
}

// requestLogger logs each request with zap once it completes.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
