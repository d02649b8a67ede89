package accounts_test

import (
	"context"
	"testing"

	"wallet-bot/internal/common"
	"wallet-bot/internal/features/accounts"
	"wallet-bot/internal/testutil"
)

func TestRegisterTakesFirstCredential(t *testing.T) {
	st, _ := testutil.NewStore(t)
	reg := accounts.NewRegistry(st)
	ctx := context.Background()
	testutil.AddCredentials(t, st, "alpha", "beta")

	a, err := reg.Register(ctx, 100, 0)
	testutil.AssertNoError(t, err)
	if a.CredentialName != "alpha" || a.CredentialSecret != "pw-alpha" {
		t.Fatalf("unexpected credential: %s/%s", a.CredentialName, a.CredentialSecret)
	}
	if a.BotBalance != 0 || a.ExternalBalance != 0 || a.ReferredBy != nil {
		t.Fatalf("new account not clean: %+v", a)
	}

	_, err = reg.Register(ctx, 100, 0)
	testutil.AssertErrorIs(t, err, common.ErrAlreadyRegistered)

	pool, err := reg.ListPredefined(ctx)
	testutil.AssertNoError(t, err)
	if len(pool) != 1 || pool[0].Name != "beta" {
		t.Fatalf("pool after registration: %+v", pool)
	}
}

func TestRegisterEmptyPool(t *testing.T) {
	st, _ := testutil.NewStore(t)
	reg := accounts.NewRegistry(st)
	ctx := context.Background()

	_, err := reg.Register(ctx, 100, 0)
	testutil.AssertErrorIs(t, err, common.ErrNoCredentialsAvailable)

	_, err = reg.FindByIdentity(ctx, 100)
	testutil.AssertErrorIs(t, err, common.ErrAccountNotFound)
}

func TestRegisterReferrer(t *testing.T) {
	st, _ := testutil.NewStore(t)
	reg := accounts.NewRegistry(st)
	ctx := context.Background()
	testutil.CreateAccount(t, st, 1)
	testutil.AddCredentials(t, st, "a", "b", "c")

	tests := []struct {
		name     string
		identity int64
		referrer int64
		want     int64
	}{
		{"existing referrer", 10, 1, 1},
		{"self referral dropped", 11, 11, 0},
		{"unknown referrer dropped", 12, 999, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := reg.Register(ctx, tt.identity, tt.referrer)
			testutil.AssertNoError(t, err)
			var got int64
			if a.ReferredBy != nil {
				got = *a.ReferredBy
			}
			if got != tt.want {
				t.Fatalf("referred_by = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBanIsIdempotent(t *testing.T) {
	st, _ := testutil.NewStore(t)
	reg := accounts.NewRegistry(st)
	ctx := context.Background()
	testutil.CreateAccount(t, st, 5)

	steps := []struct {
		name string
		do   func() (accounts.BanOutcome, error)
		want accounts.BanOutcome
	}{
		{"ban", func() (accounts.BanOutcome, error) { return reg.Ban(ctx, 5, "") }, accounts.BanChanged},
		{"ban again", func() (accounts.BanOutcome, error) { return reg.Ban(ctx, 5, "спам") }, accounts.BanUnchanged},
		{"unban", func() (accounts.BanOutcome, error) { return reg.Unban(ctx, 5) }, accounts.BanChanged},
		{"unban again", func() (accounts.BanOutcome, error) { return reg.Unban(ctx, 5) }, accounts.BanUnchanged},
		{"ban missing", func() (accounts.BanOutcome, error) { return reg.Ban(ctx, 404, "x") }, accounts.BanNotFound},
	}
	for _, s := range steps {
		got, err := s.do()
		testutil.AssertNoError(t, err)
		if got != s.want {
			t.Fatalf("%s: outcome = %v, want %v", s.name, got, s.want)
		}
	}

	_, err := reg.Ban(ctx, 5, "")
	testutil.AssertNoError(t, err)
	banned, reason, err := reg.BanStatus(ctx, 5)
	testutil.AssertNoError(t, err)
	if !banned || reason != accounts.DefaultBanReason {
		t.Fatalf("ban status = %v/%q", banned, reason)
	}
}

func TestSetCredentials(t *testing.T) {
	st, _ := testutil.NewStore(t)
	reg := accounts.NewRegistry(st)
	ctx := context.Background()
	testutil.CreateAccount(t, st, 1)

	created, err := reg.SetCredentials(ctx, 2, "fresh", "pw")
	testutil.AssertNoError(t, err)
	if !created {
		t.Fatal("expected account to be created")
	}

	created, err = reg.SetCredentials(ctx, 2, "renamed", "pw2")
	testutil.AssertNoError(t, err)
	if created {
		t.Fatal("existing account reported as created")
	}
	if a := testutil.GetAccount(t, st, 2); a.CredentialName != "renamed" || a.CredentialSecret != "pw2" {
		t.Fatalf("credentials not updated: %+v", a)
	}

	_, err = reg.SetCredentials(ctx, 2, "user1", "pw")
	testutil.AssertErrorIs(t, err, common.ErrCredentialTaken)

	_, err = reg.SetCredentials(ctx, 2, " ", "pw")
	testutil.AssertValidation(t, err)
}

func TestCreateManualAndDelete(t *testing.T) {
	st, _ := testutil.NewStore(t)
	reg := accounts.NewRegistry(st)
	ctx := context.Background()

	a, err := reg.CreateManual(ctx, 77, "pw", "")
	testutil.AssertNoError(t, err)
	if a.CredentialName != "77" {
		t.Fatalf("default name = %q, want identity", a.CredentialName)
	}
	_, err = reg.CreateManual(ctx, 77, "pw", "other")
	testutil.AssertErrorIs(t, err, common.ErrAlreadyRegistered)

	_, err = reg.CreateManual(ctx, 78, "pw", "named")
	testutil.AssertNoError(t, err)

	deleted, err := reg.Delete(ctx, "named")
	testutil.AssertNoError(t, err)
	if deleted.Identity != 78 {
		t.Fatalf("deleted %d, want 78", deleted.Identity)
	}
	_, err = reg.Delete(ctx, "77")
	testutil.AssertNoError(t, err)
	_, err = reg.Delete(ctx, "77")
	testutil.AssertErrorIs(t, err, common.ErrAccountNotFound)
}

func TestPredefinedPool(t *testing.T) {
	st, _ := testutil.NewStore(t)
	reg := accounts.NewRegistry(st)
	ctx := context.Background()
	testutil.CreateAccount(t, st, 1)

	testutil.AssertNoError(t, reg.AddPredefined(ctx, "pool1", "pw"))
	testutil.AssertErrorIs(t, reg.AddPredefined(ctx, "pool1", "pw"), common.ErrCredentialTaken)
	testutil.AssertErrorIs(t, reg.AddPredefined(ctx, "user1", "pw"), common.ErrCredentialTaken)

	testutil.AssertNoError(t, reg.DeletePredefined(ctx, "pool1"))
	testutil.AssertErrorIs(t, reg.DeletePredefined(ctx, "pool1"), common.ErrCredentialNotFound)
}
