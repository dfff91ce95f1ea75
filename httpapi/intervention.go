package httpapi

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/hazyhaar/scrollguard/bus"
	"github.com/hazyhaar/scrollguard/coordinator"
	"github.com/hazyhaar/scrollguard/protocol"
	"github.com/hazyhaar/scrollguard/settings"
)

// InterventionPath is where the popup lands; the coordinator's PopupURL
// should point here.
const InterventionPath = "/intervention"

var interventionTmpl = template.Must(template.New("intervention").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Take a break</title>
<style>
body{font-family:system-ui,sans-serif;margin:0;padding:1.2rem;color:#222;background:#fafafa}
h1{font-size:1.2rem;margin:0 0 .3rem}
.domain{color:#666;font-size:.85rem;margin-bottom:1rem}
.tip{background:#fff;border-left:4px solid #4a7;padding:.8rem;margin-bottom:1rem}
ul{list-style:none;padding:0}
li{display:flex;justify-content:space-between;align-items:center;background:#fff;border:1px solid #e0e0e0;border-radius:6px;padding:.5rem .7rem;margin-bottom:.4rem}
.high{border-left:4px solid #c33}.medium{border-left:4px solid #d90}.low{border-left:4px solid #999}
.empty{color:#999;font-style:italic}
.ad{margin-top:1rem;padding:.7rem;background:#eef;border-radius:6px;font-size:.85rem}
button{cursor:pointer}
</style></head><body>
<h1>You've been scrolling for a while</h1>
{{- if .CurrentDomain}}<div class="domain">on {{.CurrentDomain}}</div>{{end}}
<div class="tip">{{.Tip}}</div>
<h2>Your todos</h2>
{{- if not .Todos}}
<p class="empty">Nothing left to do. Enjoy the break.</p>
{{- else}}
<ul>
{{- range .Todos}}
<li class="{{.Priority}}">{{.Text}}
<form method="post" action="/intervention/todos/{{.ID}}/complete">
<input type="hidden" name="data" value="{{$.Data}}"><button type="submit">Done</button>
</form></li>
{{- end}}
</ul>
{{- end}}
{{- with .AdPlaceholder}}
<div class="ad">{{.Text}} <strong>{{.CTA}}</strong></div>
{{- end}}
</body></html>`))

type interventionView struct {
	coordinator.Payload
	Data string
}

// handleIntervention renders the launch payload. ?format=json returns it
// as JSON for clients that draw their own UI.
func (s *Server) handleIntervention(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := coordinator.ParsePayload(q)
	if err != nil {
		http.Error(w, "missing or invalid intervention data", http.StatusBadRequest)
		return
	}
	if q.Get("format") == "json" {
		writeJSON(w, http.StatusOK, p)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := interventionTmpl.Execute(w, interventionView{Payload: p, Data: q.Get("data")}); err != nil {
		s.log.Warn("httpapi: render intervention", "error", err)
	}
}

// handleCompleteTodo marks a todo done through UPDATE_TODOS and reloads
// the page without it.
func (s *Server) handleCompleteTodo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad todo id", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	p, err := coordinator.ParsePayload(r.PostForm)
	if err != nil {
		http.Error(w, "missing or invalid intervention data", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	getEnv, _ := protocol.New(protocol.GetSettings, "", "", nil)
	resp, err := s.cfg.Bus.Call(ctx, getEnv)
	var st settings.Settings
	if err == nil {
		err = bus.Decode(resp, &st)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	todos := lo.Map(st.Todos, func(t settings.Todo, _ int) settings.Todo {
		if t.ID == id {
			t.Completed = true
		}
		return t
	})
	updEnv, err := protocol.New(protocol.UpdateTodos, "", "", protocol.UpdateTodosRequest{Todos: todos})
	if err == nil {
		_, err = s.cfg.Bus.Call(ctx, updEnv)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	p.Todos = lo.Reject(p.Todos, func(t settings.Todo, _ int) bool { return t.ID == id })
	next, err := coordinator.LaunchURL(InterventionPath, p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}
