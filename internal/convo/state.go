// Package convo — машина состояний диалогов: у каждого пользователя не
// больше одного активного сценария, и следующий текст трактуется по шагу,
// на котором сценарий остановился.
package convo

import "time"

// Flow — имя сценария.
type Flow string

const (
	FlowNone             Flow = ""
	FlowDepositSyriatel  Flow = "deposit-syriatel"
	FlowDepositPayeer    Flow = "deposit-payeer"
	FlowDepositCwallet   Flow = "deposit-cwallet"
	FlowDepositUSDT      Flow = "deposit-usdt"
	FlowWithdrawSyriatel Flow = "withdraw-syriatel"
	FlowWithdrawPayeer   Flow = "withdraw-payeer"
	FlowGiftSend         Flow = "gift-send"
	FlowGiftRedeem       Flow = "gift-redeem"
	FlowGiftGenerate     Flow = "gift-generate"
	FlowCredentialSet    Flow = "credential-set"
	FlowSupportMessage   Flow = "support-message"
	FlowAdminReply       Flow = "admin-reply"
	FlowExternalDeposit  Flow = "external-deposit"
	FlowExternalWithdraw Flow = "external-withdraw"
	FlowDepositBonus     Flow = "deposit-bonus"
)

// Scratch — данные, собранные по ходу сценария. Новый сценарий начинается
// с чистого Scratch.
type Scratch struct {
	Amount     int64  `json:"amount,omitempty"`
	USDAmount  string `json:"usd,omitempty"`
	TxRef      string `json:"tx_ref,omitempty"`
	Recipient  int64  `json:"recipient,omitempty"`
	Target     int64  `json:"target,omitempty"`
	Network    string `json:"network,omitempty"`
	Address    string `json:"address,omitempty"`
	Commission int64  `json:"commission,omitempty"`
	Net        int64  `json:"net,omitempty"`
	RateBps    int64  `json:"rate_bps,omitempty"`
	Name       string `json:"name,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// State — активный сценарий пользователя.
type State struct {
	Flow      Flow      `json:"flow"`
	Step      string    `json:"step"`
	Scratch   Scratch   `json:"scratch"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired сообщает, что состояние устарело к моменту now.
func (s *State) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
