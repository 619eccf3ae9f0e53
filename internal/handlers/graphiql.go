package handlers

import (
	"encoding/json"
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

// Pinned IDE asset versions, served from the unpkg CDN.
const (
	graphiqlVersion = "3.0.6"
	reactVersion    = "18.2.0"
)

type graphiqlData struct {
	GraphiQLVersion string
	ReactVersion    string
	Query           string
	Variables       string
	OperationName   string
}

// renderGraphiQL serves the IDE page with the request's query and variables
// prefilled. The page fetches results itself, so execution is bypassed here.
func (h *GraphQL) renderGraphiQL(w http.ResponseWriter, params *requestParams) {
	variables := ""
	if params.variables != nil {
		if b, err := json.MarshalIndent(params.variables, "", "  "); err == nil {
			variables = string(b)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := graphiqlTemplate.Execute(w, graphiqlData{
		GraphiQLVersion: graphiqlVersion,
		ReactVersion:    reactVersion,
		Query:           params.query,
		Variables:       variables,
		OperationName:   params.operationName,
	})
	if err != nil {
		h.log.Error("render graphiql", zap.Error(err))
	}
}

var graphiqlTemplate = template.Must(template.New("graphiql").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>GraphiQL</title>
  <style>
    body { margin: 0; }
    #graphiql { height: 100vh; }
  </style>
  <link rel="stylesheet" href="https://unpkg.com/graphiql@{{.GraphiQLVersion}}/graphiql.min.css" />
</head>
<body>
  <div id="graphiql">Loading...</div>
  <script src="https://unpkg.com/react@{{.ReactVersion}}/umd/react.production.min.js"></script>
  <script src="https://unpkg.com/react-dom@{{.ReactVersion}}/umd/react-dom.production.min.js"></script>
  <script src="https://unpkg.com/graphiql@{{.GraphiQLVersion}}/graphiql.min.js"></script>
  <script>
    var fetcher = GraphiQL.createFetcher({ url: window.location.pathname });
    ReactDOM.render(
      React.createElement(GraphiQL, {
        fetcher: fetcher,
        defaultQuery: {{.Query}},
        variables: {{.Variables}},
        operationName: {{.OperationName}},
      }),
      document.getElementById('graphiql')
    );
  </script>
</body>
</html>
`))
