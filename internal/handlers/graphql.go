// Package handlers terminates GraphQL-over-HTTP requests: it negotiates the
// method and body format, runs the query through parse, validate and execute,
// and maps the outcome to an HTTP status and JSON body.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
	"go.uber.org/zap"

	"github.com/fabienheureux/graphene-async/internal/dataloaders"
	"github.com/fabienheureux/graphene-async/internal/schema"
)

// Config tunes the dispatcher.
type Config struct {
	// Pretty indents JSON responses.
	Pretty bool
	// GraphiQL serves the IDE page on content-negotiated GET requests.
	GraphiQL bool
}

// GraphQL is the single-endpoint GraphQL handler.
type GraphQL struct {
	schema graphql.Schema
	store  schema.Store
	log    *zap.Logger
	cfg    Config
}

// NewGraphQL builds the schema over store and returns the handler.
func NewGraphQL(store schema.Store, log *zap.Logger, cfg Config) (*GraphQL, error) {
	s, err := schema.New(store)
	if err != nil {
		return nil, err
	}
	return &GraphQL{schema: s, store: store, log: log, cfg: cfg}, nil
}

// httpError is a terminal transport-level failure carrying its own status.
// It is written as a single-error JSON envelope, never retried and never
// attached to a result path.
type httpError struct {
	status  int
	message string
	allow   string
}

func (e *httpError) Error() string { return e.message }

// requestParams is what the transport hands to execution.
type requestParams struct {
	query         string
	variables     map[string]interface{}
	operationName string
	raw           bool
}

func (h *GraphQL) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	params, httpErr := h.parseRequest(r)
	if httpErr != nil {
		h.writeHTTPError(w, httpErr)
		h.logRequest(r, httpErr.status, start)
		return
	}

	if h.cfg.GraphiQL && canDisplayGraphiQL(r, params) {
		h.renderGraphiQL(w, params)
		h.logRequest(r, http.StatusOK, start)
		return
	}

	if params.query == "" {
		httpErr = &httpError{status: http.StatusBadRequest, message: "Must provide query string."}
		h.writeHTTPError(w, httpErr)
		h.logRequest(r, httpErr.status, start)
		return
	}

	result := h.execute(r.Context(), params)

	status := http.StatusOK
	response := map[string]interface{}{}
	if len(result.Errors) > 0 {
		response["errors"] = result.Errors
		// An error without a path is request-level (parse, validation,
		// transport); partial data with field-scoped errors stays a 200.
		for _, e := range result.Errors {
			if len(e.Path) == 0 {
				status = http.StatusBadRequest
				break
			}
		}
	}
	if status == http.StatusOK {
		response["data"] = result.Data
	}

	h.writeJSON(w, status, response)
	h.logRequest(r, status, start)
}

// parseRequest applies the method check and extracts query, variables and
// operation name. URL query-string values are read first; a POST body
// overrides them according to its media type.
func (h *GraphQL) parseRequest(r *http.Request) (*requestParams, *httpError) {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
	default:
		return nil, &httpError{
			status:  http.StatusMethodNotAllowed,
			message: "GraphQL only supports GET and POST requests.",
			allow:   "GET, POST",
		}
	}

	params := &requestParams{}
	q := r.URL.Query()
	params.query = q.Get("query")
	params.operationName = q.Get("operationName")
	params.raw = q.Has("raw")
	if vars := q.Get("variables"); vars != "" {
		if err := json.Unmarshal([]byte(vars), &params.variables); err != nil {
			return nil, &httpError{status: http.StatusBadRequest, message: "Variables are invalid JSON."}
		}
	}

	if r.Method != http.MethodPost {
		return params, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/graphql":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, &httpError{status: http.StatusBadRequest, message: "Could not read request body."}
		}
		params.query = string(body)

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, &httpError{status: http.StatusBadRequest, message: "Could not parse form body."}
		}
		if v := r.PostFormValue("query"); v != "" {
			params.query = v
		}
		if v := r.PostFormValue("operationName"); v != "" {
			params.operationName = v
		}
		if v := r.PostFormValue("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &params.variables); err != nil {
				return nil, &httpError{status: http.StatusBadRequest, message: "Variables are invalid JSON."}
			}
		}

	case "application/json", "":
		var body struct {
			Query         string          `json:"query"`
			Variables     json.RawMessage `json:"variables"`
			OperationName string          `json:"operationName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, &httpError{status: http.StatusBadRequest, message: "POST body sent invalid JSON."}
		}
		if body.Query != "" {
			params.query = body.Query
		}
		if body.OperationName != "" {
			params.operationName = body.OperationName
		}
		if len(body.Variables) > 0 && string(body.Variables) != "null" {
			if err := unmarshalVariables(body.Variables, &params.variables); err != nil {
				return nil, &httpError{status: http.StatusBadRequest, message: "Variables are invalid JSON."}
			}
		}
	}

	return params, nil
}

// unmarshalVariables accepts variables either as a JSON object or as a string
// containing a JSON-encoded object.
func unmarshalVariables(raw json.RawMessage, dst *map[string]interface{}) error {
	if err := json.Unmarshal(raw, dst); err == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	return json.Unmarshal([]byte(s), dst)
}

// canDisplayGraphiQL reports whether the client is a browser asking for the
// IDE page: a GET whose Accept header includes text/html, unless the raw
// parameter forces a JSON response.
func canDisplayGraphiQL(r *http.Request, params *requestParams) bool {
	if r.Method != http.MethodGet || params.raw {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// execute runs the staged pipeline. A parse failure yields a result carrying
// that single error; validation errors yield a result carrying them with
// execution skipped; otherwise the document executes with a context holding
// loaders built fresh for this request.
func (h *GraphQL) execute(ctx context.Context, params *requestParams) *graphql.Result {
	src := source.NewSource(&source.Source{
		Body: []byte(params.query),
		Name: "GraphQL request",
	})
	astDoc, err := parser.Parse(parser.ParseParams{Source: src})
	if err != nil {
		return &graphql.Result{Errors: []gqlerrors.FormattedError{gqlerrors.FormatError(err)}}
	}

	validation := graphql.ValidateDocument(&h.schema, astDoc, nil)
	if !validation.IsValid {
		return &graphql.Result{Errors: validation.Errors}
	}

	ctx = dataloaders.NewContext(ctx, dataloaders.New(h.store))
	return graphql.Execute(graphql.ExecuteParams{
		Schema:        h.schema,
		AST:           astDoc,
		OperationName: params.operationName,
		Args:          params.variables,
		Context:       ctx,
	})
}

func (h *GraphQL) writeHTTPError(w http.ResponseWriter, e *httpError) {
	if e.allow != "" {
		w.Header().Set("Allow", e.allow)
	}
	h.writeJSON(w, e.status, map[string]interface{}{
		"errors": []gqlerrors.FormattedError{gqlerrors.FormatError(e)},
	})
}

func (h *GraphQL) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var payload []byte
	var err error
	if h.cfg.Pretty {
		payload, err = json.MarshalIndent(v, "", "  ")
	} else {
		payload, err = json.Marshal(v)
	}
	if err != nil {
		h.log.Error("encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.log.Warn("write response", zap.Error(err))
	}
}

func (h *GraphQL) logRequest(r *http.Request, status int, start time.Time) {
	h.log.Debug("graphql request",
		zap.String("method", r.Method),
		zap.Int("status", status),
		zap.Duration("took", time.Since(start)),
	)
}
