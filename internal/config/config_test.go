package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validConfig() *Config {
	return &Config{
		AdminID:                 5029011355,
		BotMaxInflight:          8,
		BotUpdateTimeoutSeconds: 60,
		DBDriver:                DriverSQLite,
		SQLitePath:              "data/test.db",
		AppTimezone:             "Asia/Damascus",
		ConvoBackend:            ConvoBackendMemory,
		ConvoTTL:                30 * time.Minute,
		CounterResetPolicy:      CounterResetDaily,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid sqlite", func(c *Config) {}, false},
		{"missing admin", func(c *Config) { c.AdminID = 0 }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"postgres without password", func(c *Config) { c.DBDriver = DriverPostgres }, true},
		{"postgres ok", func(c *Config) {
			c.DBDriver = DriverPostgres
			c.DBPassword = "secret"
			c.DBMaxConns = 10
			c.DBMinConns = 2
		}, false},
		{"unknown convo backend", func(c *Config) { c.ConvoBackend = "etcd" }, true},
		{"unknown counter policy", func(c *Config) { c.CounterResetPolicy = "weekly" }, true},
		{"bad timezone", func(c *Config) { c.AppTimezone = "Mars/Olympus" }, true},
		{"channel without at", func(c *Config) { c.RequiredChannel = "channel" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultPayments(t *testing.T) {
	p := DefaultPayments()

	if p.Deposit.Payeer.Address != "P1130351459" {
		t.Errorf("payeer address = %q", p.Deposit.Payeer.Address)
	}
	if !p.Deposit.USDT.Rate.Equal(decimal.NewFromInt(12800)) {
		t.Errorf("usdt rate = %s, want 12800", p.Deposit.USDT.Rate)
	}
	if p.Deposit.USDT.Expiry != 3*time.Hour {
		t.Errorf("usdt expiry = %s, want 3h", p.Deposit.USDT.Expiry)
	}

	mins := map[string]string{"trc20": "1", "bep20": "0.25", "erc20": "2.8"}
	for name, want := range mins {
		n, ok := p.Network(name)
		if !ok {
			t.Fatalf("network %s not found", name)
		}
		if !n.Min.Equal(decimal.RequireFromString(want)) {
			t.Errorf("%s min = %s, want %s", name, n.Min, want)
		}
	}
}

func TestParsePaymentsRejectsDuplicateNetwork(t *testing.T) {
	data := []byte(`
deposit:
  payeer: {address: P1, rate: "1"}
  cwallet: {address: "2", rate: "1"}
  usdt:
    rate: "1"
    expiry: 1h
    networks:
      - {name: trc20, address: T1, min: "1"}
      - {name: trc20, address: T2, min: "1"}
withdraw:
  payeer: {rate: "1"}
`)
	if _, err := ParsePayments(data); err == nil {
		t.Fatal("expected error for duplicate network")
	}
}
