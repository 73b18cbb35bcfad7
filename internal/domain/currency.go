package domain

import (
	"strings"

	"github.com/Rhymond/go-money"
)

// ParseCurrency normalizes an ISO 4217 code and rejects codes go-money does not know
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		return "", &ValidationError{Field: "currency", Value: code, Message: "unknown currency code"}
	}
	return Currency(code), nil
}
