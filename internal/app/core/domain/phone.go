package domain

import (
	"strings"
	"unicode"
)

// NormalizePhone 去除前後空白以及號碼中的所有空白字元
// 空字串代表無法正規化，呼叫端必須視為驗證失敗
func NormalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}
