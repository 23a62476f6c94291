package wallet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const currencySymbol = "₹"

func CanAfford(balance, price float64) bool {
	return balance >= price
}

// Shortage is how much more the wallet needs to cover price; never negative.
func Shortage(balance, price float64) float64 {
	short := price - balance
	if short <= 0 {
		return 0
	}
	return math.Round(short*100) / 100
}

func FormatPrice(price float64) string {
	return fmt.Sprintf("%s%.2f", currencySymbol, price)
}

// ParsePrice reads the amount out of a display price such as "₹12.50" or
// "Rs 1,200". It reports false when there is no number.
func ParsePrice(display string) (float64, bool) {
	var b strings.Builder
	seenDigit := false
scan:
	for _, r := range display {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seenDigit = true
		case r == '.':
			if seenDigit {
				b.WriteRune(r)
			}
		case r == ',':
		default:
			if seenDigit {
				break scan
			}
		}
	}
	if !seenDigit {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimRight(b.String(), "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
