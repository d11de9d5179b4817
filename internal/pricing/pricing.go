// Package pricing вычисляет действующую цену товара на момент оформления заказа.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bekzod-dev/shopmart-system/internal/catalog"
)

// ErrInvalidDiscountPercent возвращается, если процент скидки выходит за
// пределы 0–100. Такое значение — ошибка данных: молчаливое ограничение
// исказило бы итоговую сумму заказа.
var ErrInvalidDiscountPercent = errors.New("discount percent out of range")

var hundred = decimal.NewFromInt(100)

// DiscountActive сообщает, действует ли скидка в момент at.
// Границы интервала включаются.
func DiscountActive(d *catalog.Discount, at time.Time) bool {
	if d == nil {
		return false
	}
	return !at.Before(d.StartAt) && !at.After(d.EndAt)
}

// EffectiveUnitPrice возвращает цену за единицу товара на момент at:
// со скидкой, если она действует, иначе базовую. Цена со скидкой
// округляется до двух знаков по правилу half-up.
func EffectiveUnitPrice(p *catalog.Product, at time.Time) (decimal.Decimal, error) {
	d := p.Discount
	if d == nil {
		return p.BasePrice, nil
	}

	if d.Percent < 0 || d.Percent > 100 {
		return decimal.Decimal{}, fmt.Errorf("%w: %d%% for product %s", ErrInvalidDiscountPercent, d.Percent, p.ID)
	}

	if !DiscountActive(d, at) {
		return p.BasePrice, nil
	}

	factor := hundred.Sub(decimal.NewFromInt(int64(d.Percent))).Div(hundred)
	return p.BasePrice.Mul(factor).Round(2), nil
}
