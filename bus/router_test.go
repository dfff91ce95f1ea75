package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/scrollguard/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustEnv(t *testing.T, typ protocol.Type, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.New(typ, "page-1", "https://example.com/feed", payload)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestRegister_and_Call(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	r.Register(protocol.GetTips, func(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
		return json.RawMessage(`{"tips":["a"]}`), nil
	})

	resp, err := r.Call(context.Background(), mustEnv(t, protocol.GetTips, nil))
	if err != nil {
		t.Fatal(err)
	}
	var tips protocol.TipsResponse
	if err := Decode(resp, &tips); err != nil {
		t.Fatal(err)
	}
	if len(tips.Tips) != 1 || tips.Tips[0] != "a" {
		t.Errorf("tips: %+v", tips)
	}
}

func TestCall_NoHandler(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	_, err := r.Call(context.Background(), mustEnv(t, protocol.CheckPremium, nil))
	var nh *ErrNoHandler
	if !errors.As(err, &nh) {
		t.Fatalf("expected ErrNoHandler, got %T: %v", err, err)
	}
	if nh.Type != protocol.CheckPremium {
		t.Errorf("Type: got %q", nh.Type)
	}
}

func TestCall_UnknownType(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	_, err := r.Call(context.Background(), protocol.Envelope{Type: "OPEN_POPUP"})
	var ut *ErrUnknownType
	if !errors.As(err, &ut) {
		t.Fatalf("expected ErrUnknownType, got %T: %v", err, err)
	}
}

func TestSend_SwallowsErrors(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	// Must not panic or block.
	r.Send(context.Background(), mustEnv(t, protocol.ResetScrollCount, nil))
}

func TestUnregister(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	r.Register(protocol.GetTips, Notify(func(context.Context, protocol.Envelope) {}))
	r.Unregister(protocol.GetTips)
	if _, err := r.Call(context.Background(), mustEnv(t, protocol.GetTips, nil)); err == nil {
		t.Fatal("handler still routable after Unregister")
	}
}

func TestFunc_DecodesPayload(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	var got protocol.UpdateTodosRequest
	r.Register(protocol.UpdateTodos, Func(func(ctx context.Context, env protocol.Envelope, req protocol.UpdateTodosRequest) (protocol.SuccessResponse, error) {
		got = req
		return protocol.SuccessResponse{Success: true}, nil
	}))

	env := protocol.Envelope{Type: protocol.UpdateTodos, Payload: json.RawMessage(`{"todos":[{"id":7,"text":"x","priority":"high","completed":false}]}`)}
	resp, err := r.Call(context.Background(), env)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != `{"success":true}` {
		t.Errorf("response: %s", resp)
	}
	if len(got.Todos) != 1 || got.Todos[0].ID != 7 {
		t.Errorf("decoded: %+v", got)
	}
}

func TestFunc_BadPayload(t *testing.T) {
	h := Func(func(ctx context.Context, env protocol.Envelope, req protocol.UpdateTodosRequest) (protocol.SuccessResponse, error) {
		t.Fatal("handler called with undecodable payload")
		return protocol.SuccessResponse{}, nil
	})
	_, err := h(context.Background(), protocol.Envelope{Type: protocol.UpdateTodos, Payload: json.RawMessage(`{"todos":"nope"}`)})
	var bp *ErrBadPayload
	if !errors.As(err, &bp) {
		t.Fatalf("expected ErrBadPayload, got %T: %v", err, err)
	}
}

func TestMiddleware_Order(t *testing.T) {
	var trace []string
	mark := func(name string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
				trace = append(trace, name)
				return next(ctx, env)
			}
		}
	}
	r := New(WithLogger(quietLogger()), WithMiddleware(mark("outer"), mark("inner")))
	r.Register(protocol.GetTips, Notify(func(context.Context, protocol.Envelope) { trace = append(trace, "handler") }))

	if _, err := r.Call(context.Background(), mustEnv(t, protocol.GetTips, nil)); err != nil {
		t.Fatal(err)
	}
	if strings.Join(trace, ",") != "outer,inner,handler" {
		t.Errorf("order: %v", trace)
	}
}

func TestRecovery(t *testing.T) {
	r := New(WithMiddleware(Recovery(quietLogger())), WithLogger(quietLogger()))
	r.Register(protocol.GetSettings, func(context.Context, protocol.Envelope) (json.RawMessage, error) {
		panic("boom")
	})
	_, err := r.Call(context.Background(), mustEnv(t, protocol.GetSettings, nil))
	var p *ErrPanic
	if !errors.As(err, &p) {
		t.Fatalf("expected ErrPanic, got %T: %v", err, err)
	}
	if p.Value != "boom" {
		t.Errorf("Value: %v", p.Value)
	}
}

func TestTimeout(t *testing.T) {
	h := Timeout(10 * time.Millisecond)(func(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := h(context.Background(), protocol.Envelope{Type: protocol.GetSettings})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestRemote_RoundTrip(t *testing.T) {
	var gotPath string
	var gotEnv protocol.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		data, _ := io.ReadAll(req.Body)
		gotEnv, _ = protocol.Unmarshal(data)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"isPremium":true}`))
	}))
	defer srv.Close()

	r := New(WithLogger(quietLogger()))
	r.Register(protocol.CheckPremium, func(context.Context, protocol.Envelope) (json.RawMessage, error) {
		t.Fatal("local handler used despite remote route")
		return nil, nil
	})
	if err := r.RegisterRemote(protocol.CheckPremium, srv.URL+"/", HTTPOptions{}); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	resp, err := r.Call(context.Background(), mustEnv(t, protocol.CheckPremium, nil))
	if err != nil {
		t.Fatal(err)
	}
	var pr protocol.PremiumResponse
	if err := Decode(resp, &pr); err != nil || !pr.IsPremium {
		t.Fatalf("response: %s err=%v", resp, err)
	}
	if gotPath != "/api/messages/CHECK_PREMIUM" {
		t.Errorf("path: %q", gotPath)
	}
	if gotEnv.PageID != "page-1" || gotEnv.URL != "https://example.com/feed" {
		t.Errorf("envelope identity lost: %+v", gotEnv)
	}

	routes := r.Routes()
	if len(routes) != 1 || routes[0].Strategy != "http" {
		t.Errorf("routes: %+v", routes)
	}
}

func TestRemote_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	h, closeFn, err := HTTPTransport(srv.URL, HTTPOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	_, err = h(context.Background(), mustEnv(t, protocol.GetTips, nil))
	var re *ErrRemote
	if !errors.As(err, &re) {
		t.Fatalf("expected ErrRemote, got %T: %v", err, err)
	}
	if re.Status != http.StatusBadRequest || re.Body != "nope" {
		t.Errorf("ErrRemote: %+v", re)
	}
}

func TestRemote_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h, closeFn, err := HTTPTransport(srv.URL, HTTPOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	resp, err := h(context.Background(), mustEnv(t, protocol.ScrollDetected, nil))
	if err != nil || resp != nil {
		t.Fatalf("resp=%s err=%v", resp, err)
	}
}

func TestHTTPTransport_RejectsBadEndpoints(t *testing.T) {
	for _, ep := range []string{"ftp://example.com", "http://", "::bad"} {
		if _, _, err := HTTPTransport(ep, HTTPOptions{}); err == nil {
			t.Errorf("HTTPTransport(%q): expected error", ep)
		}
	}
}
