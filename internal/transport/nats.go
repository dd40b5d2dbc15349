package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/pipeline"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSTransport struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	config  *config.Config
	service TurnService
	logger  *zap.Logger

	mu     sync.Mutex // guards closed and wg.Add against Close
	closed bool
	wg     sync.WaitGroup
}

func NewNATSTransport(cfg *config.Config, service TurnService, logger *zap.Logger) (*NATSTransport, error) {
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name(cfg.ServiceName),
		nats.Timeout(cfg.NatsTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS server", zap.String("url", cfg.NatsURL))

	return &NATSTransport{
		conn:    conn,
		config:  cfg,
		service: service,
		logger:  logger,
	}, nil
}

func (nt *NATSTransport) Start() error {
	sub, err := nt.conn.Subscribe(nt.config.NatsRequestSubject, nt.handleTurnRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", nt.config.NatsRequestSubject, err)
	}
	nt.sub = sub

	nt.logger.Info("subscribed to subject", zap.String("subject", nt.config.NatsRequestSubject))
	return nil
}

// handleTurnRequest replies from its own goroutine so that a slow turn does
// not hold up other sessions on the same subscription.
func (nt *NATSTransport) handleTurnRequest(msg *nats.Msg) {
	nt.mu.Lock()
	if nt.closed {
		nt.mu.Unlock()
		nt.logger.Debug("dropping request received after close", zap.String("subject", msg.Subject))
		return
	}
	nt.wg.Add(1)
	nt.mu.Unlock()

	go func() {
		defer nt.wg.Done()

		response := nt.process(msg.Data)
		if err := nt.sendResponse(msg, response); err != nil {
			nt.logger.Error("failed to send response",
				zap.String("session_id", response.SessionID),
				zap.Error(err))
		}
	}()
}

// process decodes a TurnRequest and runs it. Undecodable payloads yield an
// INVALID_REQUEST response.
func (nt *NATSTransport) process(data []byte) *models.FinalResponse {
	var request models.TurnRequest
	if err := json.Unmarshal(data, &request); err != nil {
		nt.logger.Warn("invalid turn request", zap.Error(err))
		return pipeline.ErrorResponse(request.SessionID, "Invalid request format", models.ErrorInvalidRequest)
	}

	nt.logger.Debug("processing turn request", zap.String("session_id", request.SessionID))

	ctx, cancel := context.WithTimeout(context.Background(), nt.config.NatsTimeout)
	defer cancel()

	return nt.service.ProcessTurn(ctx, request)
}

func (nt *NATSTransport) sendResponse(msg *nats.Msg, response *models.FinalResponse) error {
	responseData, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := msg.Respond(responseData); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	nt.logger.Debug("response sent",
		zap.String("session_id", response.SessionID),
		zap.String("format", string(response.Format)))
	return nil
}

// Close stops receiving requests, waits for in-flight turns and closes the connection.
func (nt *NATSTransport) Close() error {
	if nt.sub != nil {
		if err := nt.sub.Unsubscribe(); err != nil {
			nt.logger.Warn("failed to unsubscribe", zap.Error(err))
		}
	}
	nt.mu.Lock()
	nt.closed = true
	nt.mu.Unlock()

	nt.wg.Wait()
	if nt.conn != nil {
		nt.conn.Close()
		nt.logger.Info("NATS connection closed")
	}
	return nil
}
