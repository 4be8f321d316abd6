package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"harmonika/internal/models"
	"harmonika/internal/poller"
)

const outboxSize = 32

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
}

// View is the polling side of a watch stream: the tasks that observe the shared
// store and an optional handler for messages the client sends.
type View struct {
	Tasks        []poller.Task
	HandleClient func(ctx context.Context, msg models.ClientMessage) error
}

// Connection streams the changes a view observes to one websocket client.
// The view's poller lives exactly as long as the connection.
type Connection struct {
	ws         wsConnection
	logger     *slog.Logger
	fromServer chan models.ServerMessage
	errorCh    chan error
	done       chan struct{}
}

func NewConnection(ws wsConnection, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		ws:         ws,
		logger:     logger,
		fromServer: make(chan models.ServerMessage, outboxSize),
		errorCh:    make(chan error, 2),
		done:       make(chan struct{}),
	}
}

// Push queues a message for the client. It does not block once the connection is gone.
func (c *Connection) Push(msg models.ServerMessage) {
	select {
	case c.fromServer <- msg:
	case <-c.done:
	}
}

// Handle runs the view until the client disconnects or ctx is done.
func (c *Connection) Handle(ctx context.Context, view View) error {
	ctx, cancel := context.WithCancel(ctx)

	stop := poller.New(c.logger, view.Tasks...).Start(ctx)

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx, view)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	cancel()
	close(c.done)
	stop()
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// pumpMessages handles client messages. Handlers may Push; mainLoop must keep draining.
func (c *Connection) pumpMessages(ctx context.Context, view View) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if view.HandleClient == nil {
			continue
		}
		if err := view.HandleClient(ctx, msg); err != nil {
			c.logger.Warn("client message rejected", "type", msg.Type, "error", err)
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-c.fromServer:
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
