package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	apperrors "incubator_messaging/pkg/errors"
)

// ErrorHandler переводит ошибки, накопленные в c.Errors, в JSON-ответ
// с машинно-читаемым kind и деталью по полю для ошибок валидации.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		body := gin.H{
			"error": err.Error(),
			"kind":  apperrors.Kind(err),
		}
		var ve *apperrors.ValidationError
		if errors.As(err, &ve) && ve.Field != "" {
			body["field"] = ve.Field
		}
		c.JSON(apperrors.HTTPStatusFromError(err), body)
	}
}
