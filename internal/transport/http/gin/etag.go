package httpgin

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zeebo/blake3"
)

// stateTag is a weak validator over the serialized state. Busy flags are
// part of the body, so a change in them changes the tag.
func stateTag(body []byte) string {
	sum := blake3.Sum256(body)
	return `W/"` + hex.EncodeToString(sum[:16]) + `"`
}

// matchesTag reports whether an If-None-Match header names tag. Weak
// comparison is used, so the W/ prefix is ignored on both sides.
func matchesTag(header, tag string) bool {
	if header == "" {
		return false
	}
	if strings.TrimSpace(header) == "*" {
		return true
	}

	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}

// writeState writes v as JSON with an ETag and answers 304 when the client
// already holds the same representation.
func writeState(c *gin.Context, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	tag := stateTag(b)
	c.Header("ETag", tag)
	c.Header("Cache-Control", "private, no-cache")

	if matchesTag(c.GetHeader("If-None-Match"), tag) {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", b)
}
