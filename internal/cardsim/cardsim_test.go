package cardsim

import "testing"

func TestSimulateKnownCards(t *testing.T) {
	cases := []struct {
		card    string
		status  string
		reason  string
		action  string
	}{
		{"4000000000000002", StatusFailed, ReasonCardDeclined, ""},
		{"4000000000009995", StatusFailed, ReasonInsufficientFunds, ""},
		{"4000000000000069", StatusFailed, ReasonExpiredCard, ""},
		{"4000000000003220", StatusRequiresAction, "", NextActionOTP},
		{"4242424242424242", StatusSucceeded, "", ""},
		{"5555555555554444", StatusSucceeded, "", ""},
	}

	for _, tc := range cases {
		outcome := Simulate(tc.card)
		if outcome.Status != tc.status || outcome.Reason != tc.reason || outcome.NextAction != tc.action {
			t.Errorf("Simulate(%s) = %+v, want status=%s reason=%s action=%s", tc.card, outcome, tc.status, tc.reason, tc.action)
		}
	}
}

func TestSimulateNormalizesFormatting(t *testing.T) {
	outcome := Simulate("4000 0000 0000 3220")
	if outcome.Status != StatusRequiresAction {
		t.Fatalf("expected requires_action for spaced input, got %s", outcome.Status)
	}
	outcome = Simulate("4000-0000-0000-0002")
	if outcome.Reason != ReasonCardDeclined {
		t.Fatalf("expected card_declined for dashed input, got %s", outcome.Reason)
	}
}

func TestBrandAndLast4(t *testing.T) {
	if got := Brand("4242424242424242"); got != "visa" {
		t.Fatalf("expected visa, got %s", got)
	}
	if got := Brand("5555555555554444"); got != "mastercard" {
		t.Fatalf("expected mastercard, got %s", got)
	}
	if got := Brand("371449635398431"); got != "card" {
		t.Fatalf("expected card, got %s", got)
	}
	if got := Last4("4242 4242 4242 4242"); got != "4242" {
		t.Fatalf("expected 4242, got %s", got)
	}
}
