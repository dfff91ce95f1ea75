package pagehost

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/scrollguard/coordinator"
)

// popup is a browser window showing the intervention page.
type popup struct {
	coordinator.CloseSignal
	b  *rod.Browser
	rp *rod.Page
	id string
}

var _ coordinator.Window = (*popup)(nil)

func openPopup(ctx context.Context, b *rod.Browser, spec coordinator.WindowSpec, log *slog.Logger) (*popup, error) {
	rp, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: spec.URL, NewWindow: true})
	if err != nil {
		return nil, fmt.Errorf("pagehost: open popup: %w", err)
	}
	w, h := spec.Width, spec.Height
	if err := rp.SetWindow(&proto.BrowserBounds{Width: &w, Height: &h}); err != nil {
		log.Debug("pagehost: popup resize failed", "error", err)
	}
	// Detach the ctx so later calls are not bound to the opening request.
	rp = rp.Context(context.Background())
	return &popup{b: b, rp: rp, id: string(rp.TargetID)}, nil
}

func (p *popup) ID() string { return p.id }

// Exists asks the browser whether the target is still open. A failed
// query is reported as an error, never as a closed window.
func (p *popup) Exists(ctx context.Context) (bool, error) {
	if p.Closed() {
		return false, nil
	}
	res, err := proto.TargetGetTargets{}.Call(p.b.Context(ctx))
	if err != nil {
		return false, fmt.Errorf("pagehost: list targets: %w", err)
	}
	for _, info := range res.TargetInfos {
		if info.TargetID == p.rp.TargetID {
			return true, nil
		}
	}
	return false, nil
}

func (p *popup) Focus(ctx context.Context) error {
	if _, err := p.rp.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("pagehost: focus popup: %w", err)
	}
	return nil
}
