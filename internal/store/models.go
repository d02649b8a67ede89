package store

import "time"

// Account — аккаунт пользователя кошелька.
type Account struct {
	Identity         int64
	CredentialName   string
	CredentialSecret string

	// Баланс внутри бота
	BotBalance int64
	// Баланс на внешней платформе (ichancy)
	ExternalBalance int64

	// Кто пригласил. Заполняется один раз при создании.
	ReferredBy   *int64
	HasDeposited bool

	DailyGiftCount       int
	DailyWithdrawalCount int
	// День (YYYY-MM-DD), к которому относятся счётчики
	CountersDay string

	Banned    bool
	BanReason string

	PhoneNumber  string
	PayeerWallet string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Типы записей журнала операций.
const (
	EntryDeposit       = "deposit"
	EntryWithdrawal    = "withdrawal"
	EntryGiftSent      = "gift_sent"
	EntryGiftReceived  = "gift_received"
	EntryGiftCode      = "gift_code"
	EntryReferralBonus = "referral_bonus"
	EntryTransferOut   = "transfer_out"
	EntryTransferIn    = "transfer_in"
	EntryAdminDeduct   = "admin_deduct"
)

// Entry — запись журнала операций. Только добавляется.
type Entry struct {
	ID              string
	Identity        int64
	Type            string
	Amount          int64
	Bonus           int64
	Fee             int64
	CounterpartyRef string
	Method          string
	Note            string
	CreatedAt       time.Time
}

// Credential — готовая учётка внешней платформы из пула.
type Credential struct {
	Name    string
	Secret  string
	AddedAt time.Time
}

// GiftCode — подарочный код.
type GiftCode struct {
	Code      string
	Value     int64
	IssuerID  int64
	Used      bool
	UsedBy    *int64
	UsedAt    time.Time
	CreatedAt time.Time
}

// Статусы заявок на пополнение.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// DepositRequest — заявка на пополнение, ожидающая решения админа.
type DepositRequest struct {
	ID         string
	Identity   int64
	Method     string
	Amount     int64
	USDAmount  string
	TxRef      string
	Status     string
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// Ключи настроек.
const (
	SettingSyriatelAddress = "syriatel_address"
	SettingContactAddress  = "contact_address"
)
