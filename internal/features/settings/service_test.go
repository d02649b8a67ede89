package settings_test

import (
	"context"
	"testing"

	"wallet-bot/internal/features/settings"
	"wallet-bot/internal/store"
	"wallet-bot/internal/testutil"
)

func TestSettingDisabledValues(t *testing.T) {
	st, _ := testutil.NewStore(t)
	svc := settings.NewService(st)
	ctx := context.Background()

	_, ok, err := svc.SyriatelAddress(ctx)
	testutil.AssertNoError(t, err)
	if ok {
		t.Fatal("unset address must be disabled")
	}

	tests := []struct {
		value string
		want  string
		ok    bool
	}{
		{"0933000000", "0933000000", true},
		{settings.Disabled, "", false},
		{" 0944111111 ", "0944111111", true},
	}
	for _, tt := range tests {
		testutil.AssertNoError(t, svc.Set(ctx, store.SettingSyriatelAddress, tt.value))
		got, ok, err := svc.SyriatelAddress(ctx)
		testutil.AssertNoError(t, err)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("value %q: got %q/%v, want %q/%v", tt.value, got, ok, tt.want, tt.ok)
		}
	}

	testutil.AssertValidation(t, svc.Set(ctx, store.SettingContactAddress, "  "))
}
