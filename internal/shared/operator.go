package shared

import (
	"net/http"
	"strconv"
)

// OperatorHeader identifies the staff member behind an admin action. The
// authentication layer that fills it lives outside this service.
const OperatorHeader = "X-Operator-ID"

// OperatorID extracts the acting operator from a request.
func OperatorID(r *http.Request) (int64, error) {
	raw := r.Header.Get(OperatorHeader)
	if raw == "" {
		return 0, ErrOperatorRequired
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrOperatorRequired
	}
	return id, nil
}
