package domain

import "github.com/shopspring/decimal"

// MoneyScale количество знаков после запятой для денежных сумм
const MoneyScale = 2

// RoundMoney округляет до центов половиной вверх
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// FormatMoney строковое представление с двумя знаками: "90.00"
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}

// LineTotal unitPrice * quantity, округлённое до центов
func LineTotal(unitPrice decimal.Decimal, quantity int64) decimal.Decimal {
	return RoundMoney(unitPrice.Mul(decimal.NewFromInt(quantity)))
}
