package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// JSON writes v as an application/json response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error body. Internal detail stays in the logs; only
// msg reaches the client.
func Error(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	JSON(w, status, map[string]string{"error": msg})
}

// Fields writes a 400 with a per-field message map.
func Fields(w http.ResponseWriter, fields map[string]string) {
	JSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": fields})
}

// DecodeJSON decodes the request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// DecodeAllowed decodes the request body into dst, rejecting the whole
// request if the body contains any key outside allowed. The whitelist is
// checked before any field-level validation runs.
func DecodeAllowed(r *http.Request, dst any, allowed ...string) error {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("request body must not be empty")
	}
	permitted := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		permitted[k] = true
	}
	for k := range raw {
		if !permitted[k] {
			return fmt.Errorf("unknown field %q", k)
		}
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, dst)
}
