package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var currencySymbols = map[string]string{
	"usd": "$",
	"cad": "CA$",
	"aud": "A$",
	"eur": "€",
	"gbp": "£",
}

var moneyPrinter = message.NewPrinter(language.English)

// FormatPrice форматирует сумму в минимальных единицах: 150000 usd -> "$1,500.00"
func FormatPrice(amount int64, currency string) string {
	currency = strings.ToLower(currency)
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	major := moneyPrinter.Sprintf("%d", amount/100)
	minor := fmt.Sprintf("%02d", amount%100)
	if symbol, ok := currencySymbols[currency]; ok {
		return sign + symbol + major + "." + minor
	}
	return sign + major + "." + minor + " " + strings.ToUpper(currency)
}
