package proxy

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func streamToDownstream(gc *gin.Context, resp *http.Response) (int64, error) {
	dst := gc.Writer.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	removeHopHeaders(dst)
	gc.Status(resp.StatusCode)

	if !shouldFlush(resp) {
		return io.Copy(gc.Writer, resp.Body)
	}
	return io.Copy(flushWriter{gc.Writer}, resp.Body)
}

// shouldFlush is true for event streams and bodies of unknown length.
func shouldFlush(resp *http.Response) bool {
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	return strings.HasPrefix(ct, "text/event-stream") || resp.ContentLength < 0
}

type flushWriter struct {
	w gin.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if n > 0 {
		f.w.Flush()
	}
	return n, err
}
