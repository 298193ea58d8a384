package middleware

import (
	"github.com/gin-gonic/gin"
)

// RouteOpt configures a route.
type RouteOpt struct {
	Auth gin.HandlerFunc // nil means the route is public
}

func handlers(h gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.Auth == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{opt.Auth, h}
}

// POST mounts handler behind opt.Auth when set.
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, handlers(handler, opt)...)
}

// GET mounts handler behind opt.Auth when set.
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, handlers(handler, opt)...)
}

// PUT mounts handler behind opt.Auth when set.
func PUT(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.PUT(path, handlers(handler, opt)...)
}
