package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/autorest/internal/endpoint"
	"github.com/koustreak/autorest/internal/errs"
)

type ctxKey struct{}

// listBody is the list response envelope.
type listBody struct {
	Count    int64            `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []map[string]any `json:"results"`
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string)
	base := baseURL(r)
	for _, route := range s.reg.Routes() {
		e, ok := s.reg.Route(route)
		if !ok || !s.opts.Permission.Allowed(r, e.Ref.Schema) {
			continue
		}
		out[route] = base + "/" + route + "/"
	}
	writeJSON(w, http.StatusOK, out)
}

// resolve loads the endpoint named by the route parameter and checks the
// permission predicate.
func (s *Server) resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := chi.URLParam(r, "route")
		e, ok := s.reg.Route(route)
		if !ok {
			s.fail(w, r, errs.Newf(errs.ErrKindNotFound, "no endpoint %q", route))
			return
		}
		if !s.opts.Permission.Allowed(r, e.Ref.Schema) {
			s.fail(w, r, errs.Newf(errs.ErrKindPermissionDenied, "schema %q is not permitted", e.Ref.Schema))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, e)))
	})
}

func endpointFrom(r *http.Request) *endpoint.Endpoint {
	return r.Context().Value(ctxKey{}).(*endpoint.Endpoint)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	e := endpointFrom(r)
	values := r.URL.Query()

	limit, offset, err := s.pageParams(values)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	where, err := e.Where(values)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	order, err := e.Ordering(values.Get("ordering"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx, cancel := s.queryContext(r.Context())
	defer cancel()

	page, err := e.List(ctx, endpoint.Query{Where: where, Order: order, Limit: limit, Offset: offset})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	results := make([]map[string]any, len(page.Results))
	for i, row := range page.Results {
		results[i] = normalizeRow(row)
	}

	writeJSON(w, http.StatusOK, listBody{
		Count:    page.Count,
		Next:     nextLink(r, page.Count, limit, offset),
		Previous: previousLink(r, limit, offset),
		Results:  results,
	})
}

func (s *Server) detail(w http.ResponseWriter, r *http.Request) {
	e := endpointFrom(r)

	ctx, cancel := s.queryContext(r.Context())
	defer cancel()

	row, err := e.Get(ctx, chi.URLParam(r, "pk"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, normalizeRow(row))
}

func (s *Server) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.QueryTimeout)
}

// pageParams reads limit and offset. A limit above MaxLimit is clamped.
func (s *Server) pageParams(values url.Values) (limit, offset int, err error) {
	limit = s.opts.DefaultLimit
	if raw := values.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, errs.Newf(errs.ErrKindInvalidInput, "limit must be a positive integer, got %q", raw)
		}
	}
	if limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}
	if raw := values.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errs.Newf(errs.ErrKindInvalidInput, "offset must be a non-negative integer, got %q", raw)
		}
	}
	return limit, offset, nil
}

func nextLink(r *http.Request, count int64, limit, offset int) *string {
	if int64(offset+limit) >= count {
		return nil
	}
	return pageLink(r, limit, offset+limit)
}

func previousLink(r *http.Request, limit, offset int) *string {
	if offset <= 0 {
		return nil
	}
	if offset-limit <= 0 {
		return pageLink(r, limit, 0)
	}
	return pageLink(r, limit, offset-limit)
}

// pageLink rebuilds the request URL with new paging values. Offset 0 is
// dropped from the query.
func pageLink(r *http.Request, limit, offset int) *string {
	q := r.URL.Query()
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	} else {
		q.Del("offset")
	}
	link := baseURL(r) + r.URL.Path + "?" + q.Encode()
	return &link
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
