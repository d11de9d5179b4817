// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

const phoneNumberLength = 12

// IsValidPhoneNumber проверяет, что номер телефона состоит ровно из
// двенадцати цифр без разделителей (например, 998901234567).
func IsValidPhoneNumber(number string) bool {
	if len(number) != phoneNumberLength {
		return false
	}

	for _, ch := range number {
		if !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}

// IsSixDigitNumber проверяет формат номера заказа: ровно шесть цифр.
func IsSixDigitNumber(number string) bool {
	if len(number) != 6 {
		return false
	}

	for _, ch := range number {
		if !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}
