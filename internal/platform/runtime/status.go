package runtime

import (
	"encoding/json"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

const maxErrBody = 1024

// checkStatus maps non-2xx responses to a RequestError carrying the status
// and (truncated) body for diagnostics. A 404 is classified not-found by
// domain.IsNotFound, which the scanner treats as fatal on the enumeration path.
func checkStatus(op string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := string(body)
	var apiErr errorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	if len(msg) > maxErrBody {
		msg = msg[:maxErrBody]
	}

	return &domain.RequestError{Op: op, Status: statusCode, Body: msg}
}
