package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/graphql-cost-guard/internal/guard"
	"github.com/couchcryptid/graphql-cost-guard/internal/model"
	"github.com/couchcryptid/graphql-cost-guard/internal/observability"
)

// graphQLRequest is the POST body of a GraphQL-over-HTTP request.
type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// Proxy fronts an upstream GraphQL server and rejects requests whose
// estimated cost exceeds the budget before they reach it. Requests it cannot
// analyze are forwarded untouched; a broken estimate fails open.
type Proxy struct {
	guard    *guard.Guard
	upstream *httputil.ReverseProxy
	recorder *Recorder
	metrics  *observability.Metrics
	logger   *slog.Logger
	maxBody  int64
}

// New returns a Proxy forwarding admitted traffic to upstream. When the
// upstream URL carries a path it replaces the incoming one, so the proxy's
// mount point does not have to match the upstream's. Bodies larger than
// maxBody bytes are rejected before analysis.
func New(g *guard.Guard, upstream *url.URL, recorder *Recorder, metrics *observability.Metrics, logger *slog.Logger, maxBody int64) *Proxy {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = upstream.Scheme
			pr.Out.URL.Host = upstream.Host
			if upstream.Path != "" {
				pr.Out.URL.Path = upstream.Path
			}
			pr.Out.Host = upstream.Host
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed", "error", err, "path", r.URL.Path)
			writeGraphQLError(w, http.StatusBadGateway, "upstream unavailable", nil)
		},
	}
	return &Proxy{
		guard:    g,
		upstream: rp,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
		maxBody:  maxBody,
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		// GET document requests and websocket upgrades go straight through.
		p.upstream.ServeHTTP(w, r)
		return
	}
	media := mediaType(r.Header.Get("Content-Type"))
	if media != "" && media != "application/json" && media != "application/graphql" {
		// Multipart uploads and other encodings are not analyzable here.
		p.upstream.ServeHTTP(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, p.maxBody+1))
	_ = r.Body.Close()
	if err != nil {
		writeGraphQLError(w, http.StatusBadRequest, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > p.maxBody {
		writeGraphQLError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", p.maxBody), nil)
		return
	}
	// The body is consumed for analysis; restore it for the upstream.
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	var gqlReq graphQLRequest
	if media == "application/graphql" {
		gqlReq.Query = string(body)
	} else if err := json.Unmarshal(body, &gqlReq); err != nil {
		writeGraphQLError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}
	if strings.TrimSpace(gqlReq.Query) == "" {
		writeGraphQLError(w, http.StatusBadRequest, "no query in request", nil)
		return
	}

	decision, err := p.guard.Check(r.Context(), gqlReq.Query, gqlReq.Variables)
	if err != nil {
		// Fail open: invalid documents earn their real error from the
		// upstream, and a pricing bug must not take down query traffic.
		p.metrics.EstimateFailures.Inc()
		p.logger.Warn("cost estimate failed",
			"error", err, "operation", gqlReq.OperationName)
		p.upstream.ServeHTTP(w, r)
		return
	}

	p.record(gqlReq, decision)

	if !decision.Allowed {
		writeGraphQLError(w, http.StatusTooManyRequests,
			fmt.Sprintf("operation cost %d exceeds maximum allowed cost of %d", decision.Cost, decision.Threshold),
			map[string]interface{}{
				"code":      "COST_LIMIT_EXCEEDED",
				"cost":      decision.Cost,
				"threshold": decision.Threshold,
			})
		return
	}

	p.upstream.ServeHTTP(w, r)
}

// record enqueues an audit record for sampled decisions.
func (p *Proxy) record(req graphQLRequest, d guard.Decision) {
	if p.recorder == nil || !d.Sampled {
		return
	}
	p.recorder.Enqueue(&model.DecisionRecord{
		CacheKey:      d.Key,
		OperationName: req.OperationName,
		OperationKind: operationKind(req.Query),
		Cost:          d.Cost,
		Threshold:     d.Threshold,
		Allowed:       d.Allowed,
		FromCache:     d.FromCache,
		EstimateMs:    float64(d.Elapsed.Microseconds()) / 1000.0,
		DecidedAt:     time.Now().UTC(),
	})
}

// operationKind labels a document for audit purposes, best effort: a
// document mixing kinds is labeled by its first operation.
func operationKind(query string) model.OperationKind {
	q := strings.TrimSpace(query)
	for strings.HasPrefix(q, "#") {
		idx := strings.IndexByte(q, '\n')
		if idx < 0 {
			return model.OperationKindQuery
		}
		q = strings.TrimSpace(q[idx+1:])
	}
	if strings.HasPrefix(q, "mutation") {
		return model.OperationKindMutation
	}
	return model.OperationKindQuery
}

func mediaType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

type graphQLError struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

type graphQLErrorResponse struct {
	Errors []graphQLError `json:"errors"`
}

// writeGraphQLError responds with a GraphQL-shaped error body so existing
// clients surface the rejection the same way as an execution error.
func writeGraphQLError(w http.ResponseWriter, status int, msg string, extensions map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(graphQLErrorResponse{
		Errors: []graphQLError{{Message: msg, Extensions: extensions}},
	})
}
