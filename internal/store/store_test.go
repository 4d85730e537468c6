package store

import (
	"errors"
	"testing"
)

func TestNormalizeLinesAggregatesAndSortsAscending(t *testing.T) {
	lines, err := NormalizeLines([]SaleLine{
		{ProductID: 108, Quantity: 1},
		{ProductID: 103, Quantity: 2},
		{ProductID: 108, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].ProductID != 103 || lines[1].ProductID != 108 {
		t.Fatalf("expected ascending product ids, got %d then %d", lines[0].ProductID, lines[1].ProductID)
	}
	if lines[1].Quantity != 4 {
		t.Fatalf("expected duplicate lines merged to quantity 4, got %d", lines[1].Quantity)
	}
}

func TestNormalizeLinesRejectsEmptyAndBadQuantity(t *testing.T) {
	if _, err := NormalizeLines(nil); !errors.Is(err, ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for empty input, got %v", err)
	}
	if _, err := NormalizeLines([]SaleLine{{ProductID: 103, Quantity: 0}}); !errors.Is(err, ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for zero quantity, got %v", err)
	}
}
