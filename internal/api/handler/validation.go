package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"accounthub/pkg/response"
)

var registerOnce sync.Once

// RegisterValidation 让校验错误使用 json 字段名，路由初始化时调用一次
func RegisterValidation() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
}

// bindJSON 绑定并校验 JSON 请求体，失败时写入响应并返回 false
// 空请求体按 {} 处理，必填字段照常报错
func bindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if errors.Is(err, io.EOF) {
		err = binding.Validator.ValidateStruct(obj)
	}
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &maxErr):
		response.Error(c, http.StatusRequestEntityTooLarge, response.MsgBodyTooLarge)
	case errors.As(err, &verrs):
		response.Fields(c, validationFields(verrs))
	default:
		response.BadRequest(c, response.MsgInvalidRequest)
	}
	return false
}

// validationFields 将校验错误转换为按 json 路径嵌套的字段错误表
// 例如 CreateUserRequest.user.username -> {"user":{"username":[...]}}
func validationFields(verrs validator.ValidationErrors) map[string]interface{} {
	out := make(map[string]interface{})
	for _, fe := range verrs {
		parts := strings.Split(fe.Namespace(), ".")
		if len(parts) > 1 {
			parts = parts[1:]
		}

		node := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				node[p] = child
			}
			node = child
		}

		leaf := parts[len(parts)-1]
		msgs, _ := node[leaf].([]string)
		node[leaf] = append(msgs, validationMessage(fe))
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field may not be blank."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "datetime":
		return "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
	default:
		return "Invalid value."
	}
}

// fieldError 构造单字段错误响应体
func fieldError(field, msg string) map[string]interface{} {
	return map[string]interface{}{field: []string{msg}}
}
