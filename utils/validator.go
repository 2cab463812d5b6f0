package utils

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	validate      = validator.New()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,31}$`)
)

// 初始化验证器
func init() {
	registerRules(validate)

	// gin 的 binding 标签使用自己的验证器实例，同样注册自定义规则
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerRules(v)
	}
}

// registerRules 注册自定义验证规则
func registerRules(v *validator.Validate) {
	_ = v.RegisterValidation("username", validateUsername)
	_ = v.RegisterValidation("isbn", validateISBN)
	_ = v.RegisterValidation("price", validatePrice)
}

// Validator 验证器结构
type Validator struct {
	validator *validator.Validate
}

// NewValidator 创建新的验证器实例
func NewValidator() *Validator {
	return &Validator{
		validator: validate,
	}
}

// Validate 验证结构体
func (v *Validator) Validate(obj interface{}) error {
	if err := v.validator.Struct(obj); err != nil {
		return FormatValidationError(err)
	}
	return nil
}

// FormatValidationError 将 validator 错误转换为 ValidationError，其他错误原样返回
func FormatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return formatValidationErrors(validationErrors)
	}
	return err
}

// formatValidationErrors 格式化验证错误信息
func formatValidationErrors(errs []validator.FieldError) error {
	errorMap := make(map[string]string)
	tags := make(map[string]string)

	for _, err := range errs {
		errorMap[err.Field()] = getErrorMessage(err.Field(), err.Tag(), err.Param())
		tags[err.Field()] = err.Tag()
	}

	return &ValidationError{Errors: errorMap, tags: tags}
}

// ValidationError 验证错误结构
type ValidationError struct {
	Errors map[string]string `json:"errors"`
	tags   map[string]string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("Validation failed: %v", ve.Errors)
}

// HasTag 判断是否有字段因指定规则校验失败
func (ve *ValidationError) HasTag(tag string) bool {
	for _, t := range ve.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// getErrorMessage 获取错误消息
func getErrorMessage(field, tag, param string) string {
	errorMessages := map[string]string{
		"required": "%s不能为空",
		"min":      "%s长度不能小于%s",
		"max":      "%s长度不能大于%s",
		"gt":       "%s必须大于%s",
		"numeric":  "%s必须是数字",
		"username": "%s只能包含字母、数字和下划线，且以字母开头",
		"isbn":     "%s必须是10位或13位数字",
		"price":    "%s格式不正确",
	}

	fieldNames := map[string]string{
		"Username": "用户名",
		"ISBN":     "ISBN",
		"Price":    "价格",
		"Title":    "标题",
		"Authors":  "作者",
	}

	fieldName := fieldNames[field]
	if fieldName == "" {
		fieldName = field
	}

	template, exists := errorMessages[tag]
	if !exists {
		return fmt.Sprintf("%s验证失败", fieldName)
	}
	if param == "" {
		return fmt.Sprintf(template, fieldName)
	}
	return fmt.Sprintf(template, fieldName, param)
}

// 自定义验证规则

// validateUsername 用户名验证（公开用户名，用于买家联系卖家）
func validateUsername(fl validator.FieldLevel) bool {
	return ValidateUsername(fl.Field().String())
}

// validateISBN ISBN格式验证，校验位由解析流程负责
func validateISBN(fl validator.FieldLevel) bool {
	return IsISBNShape(fl.Field().String())
}

// validatePrice 价格验证
func validatePrice(fl validator.FieldLevel) bool {
	_, _, err := NormalizePrice(fl.Field().String())
	return err == nil
}

// ValidateUsername 校验公开用户名
func ValidateUsername(username string) bool {
	return usernameRegex.MatchString(username)
}

// BindAndValidate 绑定并验证请求
func BindAndValidate(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return FormatValidationError(err)
	}

	v := NewValidator()
	if err := v.Validate(obj); err != nil {
		return err
	}

	return nil
}

// LimitStringLength 限制字符串长度（按字符计算）
func LimitStringLength(input string, maxLength int) string {
	runes := []rune(input)
	if len(runes) <= maxLength {
		return input
	}
	return string(runes[:maxLength])
}
