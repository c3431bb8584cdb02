package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shashin/internal/auth"
	"shashin/internal/generated"
)

// cameraPrefix 以下はカメラを操作するAPI
const cameraPrefix = "/api/camera"

// userIDKey は検証済みのユーザーIDを保存するコンテキストキー
const userIDKey = "userId"

// requireToken はカメラAPIでトークンCookieを検証するミドルウェアを作成する
func requireToken(issuer *auth.Issuer) generated.MiddlewareFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, cameraPrefix) {
			return
		}

		cookie, err := c.Request.Cookie(auth.CookieName)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "認証が必要です", nil)
			return
		}

		claims, err := issuer.Validate(cookie.Value)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "トークンが無効です", err)
			return
		}
		c.Set(userIDKey, claims.UserID)
	}
}
