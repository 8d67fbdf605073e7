// Package httpapi wires the JSON/form HTTP surface onto gorilla/mux, for
// both the issuance node and the peer node.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// addRoute registers handler at path for methods, and again at path with a
// trailing slash appended or removed, so both forms respond directly
// without relying on mux's redirect-based StrictSlash behavior.
func addRoute(r *mux.Router, path string, handler http.HandlerFunc, methods ...string) {
	r.HandleFunc(path, handler).Methods(methods...)
	alt := altSlash(path)
	if alt != path {
		r.HandleFunc(alt, handler).Methods(methods...)
	}
}

func altSlash(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[len(path)-1] == '/' {
		return path[:len(path)-1]
	}
	return path + "/"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads and decodes a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func requestLogger(log *logrus.Entry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path, "remote": r.RemoteAddr}).Debug("request")
			next.ServeHTTP(w, r)
		})
	}
}

type nodesResponse struct {
	Nodes []string `json:"nodes"`
}

type messageResponse struct {
	Message string   `json:"message"`
	Nodes   []string `json:"nodes,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type portRequest struct {
	Port int `json:"port"`
}
