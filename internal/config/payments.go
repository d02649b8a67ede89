package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed payments.yaml
var defaultPayments []byte

// USDTNetwork — сеть для пополнения в USDT.
type USDTNetwork struct {
	Name    string          `yaml:"name"`
	Title   string          `yaml:"title"`
	Address string          `yaml:"address"`
	Min     decimal.Decimal `yaml:"min"`
}

// Channel — канал с фиксированным адресом и курсом к USD.
type Channel struct {
	Address string          `yaml:"address"`
	Rate    decimal.Decimal `yaml:"rate"`
}

// Payments — каталог платёжных каналов.
type Payments struct {
	Deposit struct {
		Payeer  Channel `yaml:"payeer"`
		Cwallet Channel `yaml:"cwallet"`
		USDT    struct {
			Rate     decimal.Decimal `yaml:"rate"`
			Expiry   time.Duration   `yaml:"expiry"`
			Networks []USDTNetwork   `yaml:"networks"`
		} `yaml:"usdt"`
	} `yaml:"deposit"`
	Withdraw struct {
		Payeer struct {
			Rate decimal.Decimal `yaml:"rate"`
		} `yaml:"payeer"`
	} `yaml:"withdraw"`
}

// Network ищет сеть USDT по имени.
func (p *Payments) Network(name string) (USDTNetwork, bool) {
	for _, n := range p.Deposit.USDT.Networks {
		if strings.EqualFold(n.Name, name) {
			return n, true
		}
	}
	return USDTNetwork{}, false
}

// Validate проверяет каталог на заведомо неверные значения.
func (p *Payments) Validate() error {
	positive := map[string]decimal.Decimal{
		"deposit.payeer.rate":  p.Deposit.Payeer.Rate,
		"deposit.cwallet.rate": p.Deposit.Cwallet.Rate,
		"deposit.usdt.rate":    p.Deposit.USDT.Rate,
		"withdraw.payeer.rate": p.Withdraw.Payeer.Rate,
	}
	for key, v := range positive {
		if !v.IsPositive() {
			return fmt.Errorf("payments: %s должен быть > 0", key)
		}
	}
	if len(p.Deposit.USDT.Networks) == 0 {
		return fmt.Errorf("payments: не задано ни одной сети USDT")
	}
	seen := make(map[string]bool)
	for _, n := range p.Deposit.USDT.Networks {
		if n.Name == "" || n.Address == "" {
			return fmt.Errorf("payments: у сети USDT должны быть name и address")
		}
		if seen[n.Name] {
			return fmt.Errorf("payments: сеть %q задана дважды", n.Name)
		}
		seen[n.Name] = true
		if n.Min.IsNegative() {
			return fmt.Errorf("payments: минимум сети %q отрицательный", n.Name)
		}
	}
	if p.Deposit.USDT.Expiry <= 0 {
		return fmt.Errorf("payments: deposit.usdt.expiry должен быть > 0")
	}
	return nil
}

// ParsePayments разбирает YAML-каталог.
func ParsePayments(data []byte) (*Payments, error) {
	var p Payments
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("payments: разбор yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPayments читает каталог из файла, а при пустом пути — встроенный.
func LoadPayments(path string) (*Payments, error) {
	if path == "" {
		return ParsePayments(defaultPayments)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("payments: чтение %s: %w", path, err)
	}
	return ParsePayments(data)
}

// DefaultPayments возвращает встроенный каталог. Паникует, если он сломан.
func DefaultPayments() *Payments {
	p, err := ParsePayments(defaultPayments)
	if err != nil {
		panic(err)
	}
	return p
}
