package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPrice 价格格式不正确
var ErrInvalidPrice = errors.New("invalid price")

// 与 decimal(10,2) 列一致：整数部分最多8位
var priceRegex = regexp.MustCompile(`^\d{1,8}([.,]\d{1,2})?$`)

// MaxPrice decimal(10,2) 可存储的最大价格
const MaxPrice = 99999999.99

// IsISBNShape 只检查是否为10位或13位纯数字，不校验校验位
func IsISBNShape(isbn string) bool {
	if len(isbn) != 10 && len(isbn) != 13 {
		return false
	}
	for i := 0; i < len(isbn); i++ {
		if isbn[i] < '0' || isbn[i] > '9' {
			return false
		}
	}
	return true
}

// ValidISBN 校验ISBN-10/ISBN-13的结构与校验位
// 只接受数字，因此校验值为10（通常写作X）的ISBN-10视为无效
func ValidISBN(isbn string) bool {
	if !IsISBNShape(isbn) {
		return false
	}

	if len(isbn) == 13 {
		sum := 0
		for i := 0; i < 12; i++ {
			d := int(isbn[i] - '0')
			if i%2 == 1 {
				d *= 3
			}
			sum += d
		}
		check := (10 - sum%10) % 10
		return check == int(isbn[12]-'0')
	}

	sum := 0
	for i := 0; i < 10; i++ {
		sum += (10 - i) * int(isbn[i]-'0')
	}
	return sum%11 == 0
}

// NormalizePrice 解析 "15"、"15.50"、"15,50" 形式的价格
// 返回四舍五入到分的数值以及两位小数的文本
func NormalizePrice(raw string) (float64, string, error) {
	raw = strings.TrimSpace(raw)
	if !priceRegex.MatchString(raw) {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}

	value, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || value <= 0 || value > MaxPrice {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}

	value = math.Round(value*100) / 100
	return value, strconv.FormatFloat(value, 'f', 2, 64), nil
}
