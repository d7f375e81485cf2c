package transporthttp

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/cdtdelta/checkuser/internal/logging"
)

// Problem is an RFC 7807 error body. Instance is the request path and
// RequestID matches the X-Request-Id response header, so a reviewer can
// quote a failure back to an operator.
type Problem struct {
	Title     string              `json:"title"`
	Status    int                 `json:"status"`
	Detail    string              `json:"detail,omitempty"`
	Instance  string              `json:"instance,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
}

// WriteProblem writes a problem+json response for r. errs maps parameter
// names to what is wrong with them.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string, errs map[string][]string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		RequestID: logging.RequestID(r.Context()),
		Errors:    errs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
