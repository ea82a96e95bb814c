package demo

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/rudderlabs/rudder-go-kit/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// same layout as javascript's Date.toISOString
const timestampLayout = "2006-01-02T15:04:05.000Z"

const maxBodyBytes = 1 << 20

type rootResponse struct {
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Headers   map[string]string `json:"headers"`
}

type postResponse struct {
	Message   string      `json:"message"`
	Received  interface{} `json:"received"`
	Timestamp string      `json:"timestamp"`
}

type echoResponse struct {
	Method    string                 `json:"method"`
	Path      string                 `json:"path"`
	Query     map[string]interface{} `json:"query"`
	Body      interface{}            `json:"body"`
	Timestamp string                 `json:"timestamp"`
}

type handler struct {
	logger logger.Logger
	now    func() time.Time
}

// Handler returns the http handler of the demo echo server.
//
// Implemented routes:
// - GET / : greeting with the request headers
// - POST / : echoes the request body
// - anything else : echoes method, path, query and body
func Handler(log logger.Logger, now func() time.Time) http.Handler {
	h := &handler{logger: log, now: now}

	srvMux := chi.NewRouter()
	srvMux.Get("/", h.root)
	srvMux.Post("/", h.post)
	srvMux.NotFound(h.echo)
	srvMux.MethodNotAllowed(h.echo)
	return srvMux
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, rootResponse{
		Message:   "Demo server is up and running!",
		Timestamp: h.timestamp(),
		Headers:   headers(r),
	})
}

func (h *handler) post(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		bodyError(w, err)
		return
	}
	h.logger.Infow("POST request received", "body", body)

	h.writeJSON(w, postResponse{
		Message:   "POST received successfully",
		Received:  body,
		Timestamp: h.timestamp(),
	})
}

func (h *handler) echo(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		bodyError(w, err)
		return
	}
	h.logger.Infow("request received", "method", r.Method, "path", r.URL.Path)

	query := make(map[string]interface{}, len(r.URL.Query()))
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			query[key] = values[0]
			continue
		}
		query[key] = values
	}

	h.writeJSON(w, echoResponse{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     query,
		Body:      body,
		Timestamp: h.timestamp(),
	})
}

func (h *handler) timestamp() string {
	return h.now().UTC().Format(timestampLayout)
}

func (h *handler) writeJSON(w http.ResponseWriter, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Errorf("marshalling demo response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// readBody decodes json bodies, returns an empty object for empty bodies and the
// raw text for anything else. Bodies over maxBodyBytes are rejected.
func readBody(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if r.Body == nil {
		return map[string]interface{}{}, nil
	}
	defer func() { _ = r.Body.Close() }()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]interface{}{}, nil
	}

	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return string(raw), nil
	}
	return body, nil
}

func bodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "can't read body", http.StatusBadRequest)
}

func headers(r *http.Request) map[string]string {
	res := make(map[string]string, len(r.Header)+1)
	for key, values := range r.Header {
		res[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	if r.Host != "" {
		res["host"] = r.Host
	}
	return res
}
