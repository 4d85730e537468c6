// Package cardsim is a deterministic stand-in for a card network. Outcomes
// are table-driven on well-known test card numbers so payment flows are
// reproducible in tests and demos. No card data leaves this package beyond
// brand and last4.
package cardsim

import "strings"

const (
	StatusSucceeded      = "succeeded"
	StatusFailed         = "failed"
	StatusRequiresAction = "requires_action"
)

const (
	ReasonCardDeclined      = "card_declined"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonExpiredCard       = "expired_card"
)

// NextActionOTP is the only challenge type the simulator issues.
const NextActionOTP = "otp"

// ValidOTP is the single OTP value that passes the simulated 3-D-Secure
// challenge. Any other value is a terminal failure.
const ValidOTP = "123456"

type Outcome struct {
	Status         string
	Reason         string
	RequiresAction bool
	NextAction     string
}

var outcomes = map[string]Outcome{
	"4000000000000002": {Status: StatusFailed, Reason: ReasonCardDeclined},
	"4000000000009995": {Status: StatusFailed, Reason: ReasonInsufficientFunds},
	"4000000000000069": {Status: StatusFailed, Reason: ReasonExpiredCard},
	"4000000000003220": {Status: StatusRequiresAction, RequiresAction: true, NextAction: NextActionOTP},
}

// Simulate maps a card number to its deterministic outcome. Any number not
// in the table succeeds.
func Simulate(cardNumber string) Outcome {
	if outcome, ok := outcomes[Normalize(cardNumber)]; ok {
		return outcome
	}
	return Outcome{Status: StatusSucceeded}
}

// Normalize strips spaces and dashes so formatted input matches the table.
func Normalize(cardNumber string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(cardNumber))
}

// Brand derives the card brand from the leading digits.
func Brand(cardNumber string) string {
	normalized := Normalize(cardNumber)
	switch {
	case strings.HasPrefix(normalized, "4"):
		return "visa"
	case len(normalized) >= 2 && normalized[0] == '5' && normalized[1] >= '1' && normalized[1] <= '5':
		return "mastercard"
	default:
		return "card"
	}
}

// Last4 returns the trailing four digits, or the whole number if shorter.
func Last4(cardNumber string) string {
	normalized := Normalize(cardNumber)
	if len(normalized) <= 4 {
		return normalized
	}
	return normalized[len(normalized)-4:]
}
