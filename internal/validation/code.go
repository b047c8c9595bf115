// Package validation содержит функции валидации входных данных.
package validation

import "crypto/rand"

// CodeLength — длина кода ваучера, генерируемого сервисом.
const CodeLength = 10

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// IsValidVoucherCode проверяет формат кода ваучера: ровно CodeLength
// символов из заглавных латинских букв и цифр.
func IsValidVoucherCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}

	for i := 0; i < len(code); i++ {
		ch := code[i]
		if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') {
			return false
		}
	}

	return true
}

// GenerateVoucherCode генерирует случайный код ваучера. Уникальность кода
// обеспечивает ограничение уникальности в хранилище, а не генератор.
func GenerateVoucherCode() string {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand на поддерживаемых платформах не возвращает ошибку
		panic(err)
	}

	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}

	return string(buf)
}
