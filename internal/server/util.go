package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/cradle/internal/container"
)

// Machine-readable error codes carried next to the message so clients can
// branch without parsing text.
const (
	codeBadRequest        = "bad_request"
	codeUnknownContainer  = "unknown_container"
	codeInvalidTransition = "invalid_transition"
)

type errorResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps domain errors onto HTTP statuses: unknown container is a
// 404, a rejected transition is a 409, everything else a 400.
func writeError(c *gin.Context, err error) {
	var ite *container.InvalidTransitionError
	switch {
	case errors.Is(err, container.ErrUnknownContainer):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error(), Code: codeUnknownContainer})
	case errors.As(err, &ite):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error(), Code: codeInvalidTransition})
	default:
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error(), Code: codeBadRequest})
	}
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

// isSafeName validates container names to avoid path traversal when they end
// up in log filenames. Allowed characters: A-Z a-z 0-9 . _ - and no "..".
func isSafeName(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
