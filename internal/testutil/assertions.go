package testutil

import (
	"errors"
	"testing"

	"wallet-bot/internal/common"
)

// AssertNoError валит тест, если err не nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertErrorIs проверяет errors.Is(err, target).
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()

	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, got %v", target, err)
	}
}

// AssertValidation проверяет, что err — ValidationError.
func AssertValidation(t *testing.T, err error) {
	t.Helper()

	if !common.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// AssertBalance сверяет оба баланса аккаунта.
func AssertBalance(t *testing.T, got, want int64) {
	t.Helper()

	if got != want {
		t.Fatalf("balance = %d, want %d", got, want)
	}
}
