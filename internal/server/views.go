package server

import (
	"html/template"
	"net/http"

	"github.com/netpulsehq/collector/internal/config"
	"github.com/netpulsehq/collector/internal/query"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>netpulse collector</title></head>
<body>
<h1>netpulse collector</h1>
<ul>
{{range .Targets}}
  <li><a href="/graph?type={{.Probe}}&target={{.Host}}">{{if .Label}}{{.Label}}{{else}}{{.Host}}{{end}}</a> ({{.Group}})</li>
{{end}}
</ul>
</body>
</html>
`))

var graphTemplate = template.Must(template.New("graph").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Target}} - netpulse collector</title></head>
<body>
<h1>{{.Target}}</h1>
<div id="graph"
     data-source="/graph_data?type={{.Type}}&target={{.Target}}&format={{.Format}}"
     data-plot-y="{{.PlotY}}"
     data-format-y="{{.FormatY}}"></div>
<p><a href="/">back</a></p>
</body>
</html>
`))

type indexView struct {
	Targets []query.Target
}

type graphView struct {
	Type    string
	Target  string
	Format  string
	PlotY   string
	FormatY string
}

func indexViewHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTemplate.Execute(w, indexView{Targets: deps.Queries.Targets()}); err != nil {
			deps.Logger.Error("render index failed", "error", err)
		}
	}
}

func graphViewHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		view := graphView{
			Type:   q.Get("type"),
			Target: q.Get("target"),
			Format: q.Get("format"),
		}
		if view.Type == "" || view.Target == "" {
			http.Error(w, "type and target are required", http.StatusBadRequest)
			return
		}
		graph := graphConfigFor(deps.Graphs, view.Format)
		if view.Format == "" {
			view.Format = graph.Type
		}
		view.PlotY = graph.PlotY
		view.FormatY = graph.FormatY

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := graphTemplate.Execute(w, view); err != nil {
			deps.Logger.Error("render graph failed", "error", err)
		}
	}
}

func graphConfigFor(graphs []config.GraphConfig, format string) config.GraphConfig {
	for _, g := range graphs {
		if format == "" || g.Type == format {
			return g
		}
	}
	return config.GraphConfig{Type: formatMultiTarget, PlotY: "avg", FormatY: "ms"}
}
