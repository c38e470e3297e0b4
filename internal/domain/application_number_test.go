package domain

import (
	"strconv"
	"testing"
)

func TestNewApplicationNumberBounds(t *testing.T) {
	lowest := NewApplicationNumber(func(int) int { return 0 })
	if lowest != "CBT100000" {
		t.Fatalf("expected lower bound, got %s", lowest)
	}
	highest := NewApplicationNumber(func(n int) int { return n - 1 })
	if highest != "CBT999999" {
		t.Fatalf("expected upper bound, got %s", highest)
	}
}

func TestNewApplicationNumberShape(t *testing.T) {
	for i := 0; i < 500; i++ {
		value := NewApplicationNumber(nil)
		if !ValidApplicationNumber(value) {
			t.Fatalf("generated %q does not match CBT######", value)
		}
		n, err := strconv.Atoi(value[3:])
		if err != nil {
			t.Fatalf("numeric part: %v", err)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("numeric part %d out of range", n)
		}
	}
}

func TestValidApplicationNumber(t *testing.T) {
	valid := []string{"CBT123456", "CBT999999"}
	invalid := []string{"", "CBT12345", "CBT1234567", "cbt123456", "ABC123456", " CBT123456"}
	for _, v := range valid {
		if !ValidApplicationNumber(v) {
			t.Fatalf("expected %q to be valid", v)
		}
	}
	for _, v := range invalid {
		if ValidApplicationNumber(v) {
			t.Fatalf("expected %q to be invalid", v)
		}
	}
	if got := NormalizeApplicationNumber(" cbt123456 "); got != "CBT123456" {
		t.Fatalf("unexpected normalized value %q", got)
	}
}
