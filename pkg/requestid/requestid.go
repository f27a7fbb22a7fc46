// Package requestid generates correlation ids and carries them on contexts
// and outgoing requests.
package requestid

import (
	"context"
	crand "crypto/rand"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultHeaderKey = "X-Oer-Request-Id"

type ctxKey struct{}

// ResolveHeaderKey returns headerKey when non-empty, otherwise the default.
func ResolveHeaderKey(headerKey string) string {
	if v := strings.TrimSpace(headerKey); v != "" {
		return v
	}
	return DefaultHeaderKey
}

// Gen returns a sortable id: yyyymmddHHMMSSuuuuuu followed by 8 random digits.
func Gen() string {
	return timeString() + randomDigits(8)
}

// GenUUID returns a random UUIDv4, used for calls to external registries.
func GenUUID() string {
	return uuid.NewString()
}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// Stamp sets the request id header on req unless one is already present and
// returns the id in effect. The id comes from ctx, or is generated.
func Stamp(ctx context.Context, req *http.Request, headerKey string) string {
	headerKey = ResolveHeaderKey(headerKey)
	if v := strings.TrimSpace(req.Header.Get(headerKey)); v != "" {
		return v
	}
	id := FromContext(ctx)
	if id == "" {
		id = Gen()
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set(headerKey, id)
	return id
}

func timeString() string {
	return strings.ReplaceAll(time.Now().Format("20060102150405.000000"), ".", "")
}

func randomDigits(n int) string {
	const digits = "0123456789"
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(digits[cryptoRandIntn(len(digits))])
	}
	return b.String()
}

func cryptoRandIntn(max int) int {
	if max <= 0 {
		return 0
	}
	nBig, err := crand.Int(crand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(nBig.Int64())
}
