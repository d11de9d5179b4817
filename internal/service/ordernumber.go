package service

import (
	"fmt"
	"math/rand"
)

// NewOrderNumber возвращает случайный шестизначный номер заказа,
// равномерно распределённый в диапазоне 000000–999999. Уникальность
// обеспечивается ограничением в хранилище с повторной генерацией при
// конфликте.
func NewOrderNumber() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}
