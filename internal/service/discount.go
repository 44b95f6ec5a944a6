package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"ordercore/internal/config"
	"ordercore/internal/domain"
)

// DiscountCalculator ступенчатая скидка: побеждает наибольший порог <= подытога
type DiscountCalculator struct {
	tiers []config.DiscountTier // по убыванию порога
}

func NewDiscountCalculator(tiers []config.DiscountTier) DiscountCalculator {
	cp := append([]config.DiscountTier(nil), tiers...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Threshold.GreaterThan(cp[j].Threshold) })
	return DiscountCalculator{tiers: cp}
}

// Rate ставка скидки для подытога, 0 если ни один порог не достигнут
func (d DiscountCalculator) Rate(subtotal decimal.Decimal) decimal.Decimal {
	for _, t := range d.tiers {
		if subtotal.GreaterThanOrEqual(t.Threshold) {
			return t.Rate
		}
	}
	return decimal.Zero
}

// Discount сумма скидки, округлённая до центов
func (d DiscountCalculator) Discount(subtotal decimal.Decimal) decimal.Decimal {
	return domain.RoundMoney(subtotal.Mul(d.Rate(subtotal)))
}
