package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// apiPrefix 以下のリクエストをAPI定義で検証する
const apiPrefix = "/api/"

// newRequestValidator はAPI定義でリクエストを検証するミドルウェアを作成する
func newRequestValidator(doc *openapi3.T) (gin.HandlerFunc, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, err
	}

	options := &openapi3filter.Options{
		MultiError: false,
	}

	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
			c.Next()
			return
		}

		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			switch {
			case errors.Is(err, routers.ErrMethodNotAllowed):
				abortWithError(c, http.StatusMethodNotAllowed, "method_not_allowed", "許可されていないメソッドです", err)
			default:
				abortWithError(c, http.StatusNotFound, "route_not_found", "指定されたAPIが見つかりません", err)
			}
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    options,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_request", "リクエストが不正です", err)
			return
		}

		c.Next()
	}, nil
}
