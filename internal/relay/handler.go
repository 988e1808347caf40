package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the relay endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Mount registers the relay routes on r:
//
//	GET /?url=&ref=            manifest or resource by origin URL
//	GET /segment?url=&ref=     direct-mode segment or variant playlist
//	GET /key?url=&ref=         direct-mode key
//	GET /segment/{token}       token-mode segment or variant playlist
//	GET /key/{token}           token-mode key
//
// HEAD is accepted wherever GET is.
func (h *Handler) Mount(r chi.Router) {
	for _, route := range []struct {
		pattern string
		fn      http.HandlerFunc
	}{
		{ManifestPath, h.ServeURL},
		{SegmentPath, h.ServeURL},
		{KeyPath, h.ServeURL},
		{SegmentPath + "/{token}", h.ServeToken},
		{KeyPath + "/{token}", h.ServeToken},
	} {
		r.Get(route.pattern, route.fn)
		r.Head(route.pattern, route.fn)
	}
}

// ServeURL handles requests that carry the origin URL as a query parameter.
func (h *Handler) ServeURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.serve(w, r, Request{URL: q.Get(ParamURL), Referer: q.Get(ParamReferer)})
}

// ServeToken handles token-mode follow-up requests.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, Request{Token: Token(chi.URLParam(r, "token"))})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, req Request) {
	res, err := h.svc.Relay(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	if res.CacheControl != "" {
		w.Header().Set("Cache-Control", res.CacheControl)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.WriteHeader(res.StatusCode)
	w.Write(res.Body)
}

type errorBody struct {
	Error   ErrorKind `json:"error"`
	Details string    `json:"details,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	kind := KindOf(err)
	if kind == "" {
		kind = KindNetwork
	}

	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("relay request failed", attrs...)
	} else {
		h.log.Info("relay request rejected", attrs...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: kind, Details: detail(err)})
}

// CORS attaches the fixed cross-origin policy to every response and answers
// preflight requests directly.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
