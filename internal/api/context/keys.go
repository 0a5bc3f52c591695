package context

import (
	"context"

	"github.com/julienschmidt/httprouter"

	"agencycrm/internal/engine/access"
)

type Key string

const (
	Principal Key = "principal"
	Access    Key = "access"
	Params    Key = "params"
	Request   Key = "request"
)

// RequestInfo is filled in by inner middleware so outer request logging can
// see who made the call.
type RequestInfo struct {
	UserID string
}

func RequestInfoFrom(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(Request).(*RequestInfo)
	return info
}

func PrincipalFrom(ctx context.Context) *access.Principal {
	p, _ := ctx.Value(Principal).(*access.Principal)
	return p
}

func AccessFrom(ctx context.Context) *access.Access {
	a, _ := ctx.Value(Access).(*access.Access)
	return a
}

// Param returns the named route parameter, or "" when absent.
func Param(ctx context.Context, name string) string {
	ps, _ := ctx.Value(Params).(httprouter.Params)
	return ps.ByName(name)
}
