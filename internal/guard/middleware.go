package guard

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ashureev/mailsmith/internal/metrics"
)

const maxFieldsBodySize = 1 << 20

// FieldsMiddleware rejects structured email requests whose context/purpose
// fields fail the field guard. Rejections are terminal 400 JSON errors;
// accepted requests reach next with the body intact.
func FieldsMiddleware(ev Evaluator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxFieldsBodySize))
			if err != nil {
				writeError(w, InvalidRequestReply)
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			var f Fields
			if err := json.Unmarshal(body, &f); err != nil {
				writeError(w, InvalidRequestReply)
				return
			}

			d := ev.EvaluateFields(f)
			metrics.Get().GuardDecisions.WithLabelValues("fields", string(d.Kind)).Inc()
			if !d.Allowed {
				writeError(w, d.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
