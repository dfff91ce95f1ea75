package coordinator

import (
	"context"
	"fmt"

	"github.com/hazyhaar/scrollguard/bus"
	"github.com/hazyhaar/scrollguard/protocol"
	"github.com/hazyhaar/scrollguard/settings"
)

type empty struct{}

// Register installs the coordinator's message handlers on r.
func (c *Coordinator) Register(r *bus.Router) {
	r.Register(protocol.ScrollDetected, bus.Notify(func(ctx context.Context, env protocol.Envelope) {
		c.HandlePatternDetected(ctx, env.PageID, env.URL)
	}))
	r.Register(protocol.GetSettings, bus.Func(c.handleGetSettings))
	r.Register(protocol.GetTips, bus.Func(c.handleGetTips))
	r.Register(protocol.UpdateTodos, bus.Func(c.handleUpdateTodos))
	r.Register(protocol.CheckPremium, bus.Func(c.handleCheckPremium))
}

func (c *Coordinator) handleGetSettings(ctx context.Context, _ protocol.Envelope, _ empty) (settings.Settings, error) {
	return c.loadSettings(ctx), nil
}

func (c *Coordinator) handleGetTips(context.Context, protocol.Envelope, empty) (protocol.TipsResponse, error) {
	return protocol.TipsResponse{Tips: Tips()}, nil
}

func (c *Coordinator) handleUpdateTodos(ctx context.Context, _ protocol.Envelope, req protocol.UpdateTodosRequest) (protocol.SuccessResponse, error) {
	if err := c.cfg.Settings.UpdateTodos(ctx, req.Todos); err != nil {
		return protocol.SuccessResponse{}, fmt.Errorf("coordinator: update todos: %w", err)
	}
	return protocol.SuccessResponse{Success: true}, nil
}

func (c *Coordinator) handleCheckPremium(ctx context.Context, _ protocol.Envelope, _ empty) (protocol.PremiumResponse, error) {
	return protocol.PremiumResponse{IsPremium: c.loadSettings(ctx).IsPremium}, nil
}
