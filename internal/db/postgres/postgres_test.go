package postgres

import (
	"testing"

	"wallet-bot/internal/config"
)

func TestPoolConfig(t *testing.T) {
	cfg := &config.Config{
		DBHost: "db", DBPort: 5433, DBUser: "wallet", DBPassword: "pw",
		DBName: "wallet_bot", DBSSLMode: "disable", DBMaxConns: 12, DBMinConns: 2,
	}
	pc, err := poolConfig(cfg)
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if pc.MaxConns != 12 || pc.MinConns != 2 {
		t.Errorf("conns = %d/%d", pc.MinConns, pc.MaxConns)
	}
	if pc.ConnConfig.Host != "db" || pc.ConnConfig.Port != 5433 || pc.ConnConfig.Database != "wallet_bot" {
		t.Errorf("conn config = %s:%d/%s", pc.ConnConfig.Host, pc.ConnConfig.Port, pc.ConnConfig.Database)
	}
	if pc.MaxConnLifetime != maxConnLifetime {
		t.Errorf("lifetime = %v", pc.MaxConnLifetime)
	}
}
