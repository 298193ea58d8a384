package security

import (
	"PShare/logger"
	"PShare/module/user"
	"PShare/tools/errs"
	tokensec "PShare/tools/security"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// context key under which handlers read the current user
const PPCtxUserIDKey = "userId"

type Options struct {
	Token tokensec.Options
	// Users, when set, rejects tokens whose user no longer exists.
	Users user.Directory
}

// Middleware authenticates the request (cookie "token" or bearer) and puts
// the user id into the gin context.
func Middleware(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := tokensec.Authenticate(opts.Token, c.Request)
		if err != nil {
			logger.Debug("auth rejected", zap.String("path", c.FullPath()), zap.Error(err))
			abort(c, errs.ErrAuthentication.WrapMsg(err.Error()))
			return
		}
		if opts.Users != nil {
			if _, err := opts.Users.Lookup(c.Request.Context(), uid); err != nil {
				if errors.Is(err, errs.ErrNotFound) {
					err = errs.ErrAuthentication.WrapMsg("unknown user", "userId", uid)
				}
				abort(c, err)
				return
			}
		}
		c.Set(PPCtxUserIDKey, uid)
		c.Next()
	}
}

// UserID reads the id Middleware stored.
func UserID(c *gin.Context) string {
	return c.GetString(PPCtxUserIDKey)
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errs.HTTPStatus(err), errs.Public(err))
}
