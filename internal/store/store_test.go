package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"wallet-bot/internal/store"
	"wallet-bot/internal/testutil"
)

func TestInsertAccountEnforcesUniqueIdentity(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()
	testutil.CreateAccount(t, st, 100)

	err := st.Update(ctx, func(tx *store.Tx) error {
		return tx.InsertAccount(ctx, &store.Account{Identity: 100, CredentialName: "other", CredentialSecret: "x"})
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	err = st.Update(ctx, func(tx *store.Tx) error {
		return tx.InsertAccount(ctx, &store.Account{Identity: 101, CredentialName: "user100", CredentialSecret: "x"})
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for credential name, got %v", err)
	}
}

func TestSaveAccountRoundTrip(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()
	testutil.CreateAccount(t, st, 7, testutil.WithReferrer(3))

	err := st.Update(ctx, func(tx *store.Tx) error {
		a, err := tx.Account(ctx, 7)
		if err != nil {
			return err
		}
		a.BotBalance = 1500
		a.Banned = true
		a.BanReason = "spam"
		a.PhoneNumber = "0912345678"
		a.DailyGiftCount = 2
		return tx.SaveAccount(ctx, a)
	})
	testutil.AssertNoError(t, err)

	a := testutil.GetAccount(t, st, 7)
	if a.BotBalance != 1500 || !a.Banned || a.BanReason != "spam" || a.PhoneNumber != "0912345678" || a.DailyGiftCount != 2 {
		t.Fatalf("unexpected account after save: %+v", a)
	}
	if a.ReferredBy == nil || *a.ReferredBy != 3 {
		t.Fatalf("referredBy = %v, want 3", a.ReferredBy)
	}
}

func TestFailedUpdateRollsBack(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()
	testutil.CreateAccount(t, st, 1, testutil.WithBalance(100))

	boom := errors.New("boom")
	err := st.Update(ctx, func(tx *store.Tx) error {
		a, err := tx.Account(ctx, 1)
		if err != nil {
			return err
		}
		a.BotBalance = 0
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	testutil.AssertBalance(t, testutil.GetAccount(t, st, 1).BotBalance, 100)
}

func TestNegativeBalanceRejectedByStore(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()
	testutil.CreateAccount(t, st, 1)

	err := st.Update(ctx, func(tx *store.Tx) error {
		a, err := tx.Account(ctx, 1)
		if err != nil {
			return err
		}
		a.BotBalance = -1
		return tx.SaveAccount(ctx, a)
	})
	if err == nil {
		t.Fatal("expected CHECK constraint error")
	}
}

func TestPopCredential(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()

	t.Run("empty pool", func(t *testing.T) {
		err := st.Update(ctx, func(tx *store.Tx) error {
			_, err := tx.PopCredential(ctx)
			return err
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("fifo and skips assigned names", func(t *testing.T) {
		testutil.AddCredentials(t, st, "alpha", "beta", "gamma")
		// beta уже занята аккаунтом
		err := st.Update(ctx, func(tx *store.Tx) error {
			return tx.InsertAccount(ctx, &store.Account{Identity: 9, CredentialName: "beta", CredentialSecret: "x"})
		})
		testutil.AssertNoError(t, err)

		var got []string
		for i := 0; i < 2; i++ {
			err := st.Update(ctx, func(tx *store.Tx) error {
				c, err := tx.PopCredential(ctx)
				if err != nil {
					return err
				}
				got = append(got, c.Name)
				return nil
			})
			testutil.AssertNoError(t, err)
		}
		if got[0] != "alpha" || got[1] != "gamma" {
			t.Fatalf("popped %v, want [alpha gamma]", got)
		}
	})
}

func TestMarkGiftCodeUsedOnce(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()

	err := st.Update(ctx, func(tx *store.Tx) error {
		return tx.InsertGiftCode(ctx, &store.GiftCode{Code: "ABCDEFGHIJ", Value: 500, IssuerID: 1})
	})
	testutil.AssertNoError(t, err)

	var (
		mu      sync.Mutex
		applied int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(by int64) {
			defer wg.Done()
			_ = st.Update(ctx, func(tx *store.Tx) error {
				ok, err := tx.MarkGiftCodeUsed(ctx, "ABCDEFGHIJ", by)
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					applied++
					mu.Unlock()
				}
				return nil
			})
		}(int64(i + 1))
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("code applied %d times, want 1", applied)
	}
}

func TestSettingsUpsert(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()

	testutil.SetSetting(t, st, store.SettingSyriatelAddress, "0933")
	testutil.SetSetting(t, st, store.SettingSyriatelAddress, "000")

	err := st.View(ctx, func(tx *store.Tx) error {
		v, ok, err := tx.Setting(ctx, store.SettingSyriatelAddress)
		if err != nil {
			return err
		}
		if !ok || v != "000" {
			t.Fatalf("setting = %q (%v), want 000", v, ok)
		}
		_, ok, err = tx.Setting(ctx, store.SettingContactAddress)
		if ok {
			t.Fatal("contact address should be unset")
		}
		return err
	})
	testutil.AssertNoError(t, err)
}

func TestResolveDepositRequestOnce(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()

	req := &store.DepositRequest{Identity: 5, Method: "syriatel", Amount: 1000, TxRef: "tx-1"}
	err := st.Update(ctx, func(tx *store.Tx) error {
		return tx.InsertDepositRequest(ctx, req)
	})
	testutil.AssertNoError(t, err)
	if len(req.ID) != 32 {
		t.Fatalf("request id %q, want 32 hex chars", req.ID)
	}

	for i, want := range []bool{true, false} {
		err := st.Update(ctx, func(tx *store.Tx) error {
			ok, err := tx.ResolveDepositRequest(ctx, req.ID, store.RequestApproved)
			if ok != want {
				t.Fatalf("attempt %d: resolved = %v, want %v", i, ok, want)
			}
			return err
		})
		testutil.AssertNoError(t, err)
	}
}

func TestResetDailyCounters(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		testutil.CreateAccount(t, st, id)
		err := st.Update(ctx, func(tx *store.Tx) error {
			a, err := tx.Account(ctx, id)
			if err != nil {
				return err
			}
			a.DailyGiftCount, a.DailyWithdrawalCount, a.CountersDay = 3, 2, "2026-05-09"
			return tx.SaveAccount(ctx, a)
		})
		testutil.AssertNoError(t, err)
	}

	var n int64
	err := st.Update(ctx, func(tx *store.Tx) error {
		var err error
		n, err = tx.ResetDailyCounters(ctx, "2026-05-10")
		return err
	})
	testutil.AssertNoError(t, err)
	if n != 2 {
		t.Fatalf("reset %d accounts, want 2", n)
	}
	a := testutil.GetAccount(t, st, 1)
	if a.DailyGiftCount != 0 || a.DailyWithdrawalCount != 0 || a.CountersDay != "2026-05-10" {
		t.Fatalf("counters not reset: %+v", a)
	}
}

func TestEntriesNewestFirst(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()

	err := st.Update(ctx, func(tx *store.Tx) error {
		for _, typ := range []string{store.EntryDeposit, store.EntryWithdrawal, store.EntryGiftSent} {
			if err := tx.AppendEntry(ctx, &store.Entry{Identity: 4, Type: typ, Amount: 10}); err != nil {
				return err
			}
		}
		return nil
	})
	testutil.AssertNoError(t, err)

	err = st.View(ctx, func(tx *store.Tx) error {
		entries, err := tx.Entries(ctx, 4, 2)
		if err != nil {
			return err
		}
		if len(entries) != 2 || entries[0].Type != store.EntryGiftSent || entries[1].Type != store.EntryWithdrawal {
			t.Fatalf("unexpected entries order: %+v", entries)
		}
		if entries[0].ID == "" {
			t.Fatal("entry id not assigned")
		}
		return nil
	})
	testutil.AssertNoError(t, err)
}

func TestReferralCounts(t *testing.T) {
	st, _ := testutil.NewStore(t)
	ctx := context.Background()
	testutil.CreateAccount(t, st, 1)
	testutil.CreateAccount(t, st, 2, testutil.WithReferrer(1))
	testutil.CreateAccount(t, st, 3, testutil.WithReferrer(1), func(a *store.Account) { a.HasDeposited = true })
	testutil.CreateAccount(t, st, 4, testutil.WithReferrer(2))

	err := st.View(ctx, func(tx *store.Tx) error {
		total, deposited, err := tx.ReferralCounts(ctx, 1)
		if total != 2 || deposited != 1 {
			t.Fatalf("counts = %d/%d, want 2/1", total, deposited)
		}
		return err
	})
	testutil.AssertNoError(t, err)
}
