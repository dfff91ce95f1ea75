package pagehost

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const navigateTimeout = 30 * time.Second

// tab is a browser tab wired to a Page: every document it loads runs
// scroll.js, and every binding call becomes a Page event.
type tab struct {
	rp   *rod.Page
	page *Page
	stop context.CancelFunc
	done chan struct{}
}

// openTab creates a stealth tab, installs the script and binding, starts
// forwarding events to p, then navigates to pageURL.
func openTab(ctx context.Context, b *rod.Browser, p *Page, pageURL string, log *slog.Logger) (*tab, error) {
	rp, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("pagehost: create tab: %w", err)
	}

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(rp); err != nil {
		rp.Close()
		return nil, fmt.Errorf("pagehost: add binding: %w", err)
	}
	if _, err := rp.EvalOnNewDocument(scrollJS); err != nil {
		rp.Close()
		return nil, fmt.Errorf("pagehost: install script: %w", err)
	}

	lctx, cancel := context.WithCancel(ctx)
	t := &tab{rp: rp, page: p, stop: cancel, done: make(chan struct{})}

	// Subscribe before navigating so the first init is not missed.
	wait := rp.Context(lctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName {
			return
		}
		ev, err := ParseEvent(e.Payload)
		if err != nil {
			log.Debug("pagehost: bad binding payload", "page_id", p.ID(), "error", err)
			return
		}
		p.Observe(ev)
	})
	go func() {
		defer close(t.done)
		wait()
	}()

	navCtx, navCancel := context.WithTimeout(ctx, navigateTimeout)
	defer navCancel()
	if err := rp.Context(navCtx).Navigate(pageURL); err != nil {
		t.close()
		return nil, fmt.Errorf("pagehost: navigate %s: %w", pageURL, err)
	}
	if err := rp.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("pagehost: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// targetID identifies the tab in target events.
func (t *tab) targetID() proto.TargetTargetID { return t.rp.TargetID }

// close stops forwarding and closes the browser tab. Closing a tab the user
// already closed is not an error worth reporting.
func (t *tab) close() {
	t.stop()
	<-t.done
	_ = t.rp.Close()
}
