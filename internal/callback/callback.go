// Package callback кодирует данные inline-кнопок в структурированный вид.
//
// Вместо строк вида "approve_payment_<id>_<amount>" кнопка несёт JSON
// с коротким тегом действия и типизированными полями. Telegram ограничивает
// callback_data 64 байтами, поэтому ключи однобуквенные.
package callback

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxLen — предел Telegram для callback_data.
const MaxLen = 64

// Action — тег действия кнопки.
type Action string

// Пользовательские действия.
const (
	MainMenu      Action = "menu"
	CreateAccount Action = "acc.new"
	CheckSub      Action = "sub.check"
	Cancel        Action = "cancel"
	Terms         Action = "terms"

	Ichancy         Action = "ich"
	IchancyInfo     Action = "ich.info"
	IchancyDeposit  Action = "ich.dep"
	IchancyWithdraw Action = "ich.wd"

	DepositMenu     Action = "dep"
	DepositSyriatel Action = "dep.syr"
	DepositPayeer   Action = "dep.pay"
	DepositCwallet  Action = "dep.cw"
	DepositUSDT     Action = "dep.usdt"
	DepositNetwork  Action = "dep.net"
	DepositUSDTOK   Action = "dep.usdt.ok"
	DepositSham     Action = "dep.sham"

	WithdrawMenu     Action = "wd"
	WithdrawSyriatel Action = "wd.syr"
	WithdrawPayeer   Action = "wd.pay"
	WithdrawUSDT     Action = "wd.usdt"
	WithdrawBemo     Action = "wd.bemo"
	WithdrawConfirm  Action = "wd.ok"

	Referral      Action = "ref"
	ReferralLink  Action = "ref.link"
	ReferralInfo  Action = "ref.info"
	ReferralStats Action = "ref.stats"

	GiftRedeem  Action = "gift.redeem"
	GiftSend    Action = "gift.send"
	GiftConfirm Action = "gift.ok"

	Support Action = "sup"
	Contact Action = "sup.contact"
)

// Действия администратора.
const (
	ApproveDeposit Action = "ad.ok"
	RejectDeposit  Action = "ad.no"
	DepositBonus   Action = "ad.bonus"
	DepositNoBonus Action = "ad.flat"
	SupportReply   Action = "ad.reply"
	SetCredentials Action = "ad.creds"
	GenerateCodes  Action = "ad.codes"
)

var known = map[Action]bool{
	MainMenu: true, CreateAccount: true, CheckSub: true, Cancel: true, Terms: true,
	Ichancy: true, IchancyInfo: true, IchancyDeposit: true, IchancyWithdraw: true,
	DepositMenu: true, DepositSyriatel: true, DepositPayeer: true, DepositCwallet: true,
	DepositUSDT: true, DepositNetwork: true, DepositUSDTOK: true, DepositSham: true,
	WithdrawMenu: true, WithdrawSyriatel: true, WithdrawPayeer: true, WithdrawUSDT: true,
	WithdrawBemo: true, WithdrawConfirm: true,
	Referral: true, ReferralLink: true, ReferralInfo: true, ReferralStats: true,
	GiftRedeem: true, GiftSend: true, GiftConfirm: true,
	Support: true, Contact: true,
	ApproveDeposit: true, RejectDeposit: true, DepositBonus: true, DepositNoBonus: true,
	SupportReply: true, SetCredentials: true, GenerateCodes: true,
}

// IsAdmin сообщает, что действие доступно только администратору.
func (a Action) IsAdmin() bool {
	return len(a) > 3 && a[:3] == "ad."
}

// Payload — данные кнопки.
type Payload struct {
	Action Action `json:"a"`
	// Пользователь, к которому относится действие
	User int64 `json:"u,omitempty"`
	// Заявка на пополнение
	Request string `json:"r,omitempty"`
	// Сеть USDT
	Network string `json:"n,omitempty"`
}

var (
	// ErrTooLong — закодированная кнопка длиннее MaxLen.
	ErrTooLong = errors.New("callback: данные кнопки длиннее 64 байт")
	// ErrUnknownAction — тег действия не распознан.
	ErrUnknownAction = errors.New("callback: неизвестное действие")
)

// Encode сериализует payload для callback_data.
func Encode(p Payload) (string, error) {
	if !known[p.Action] {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, p.Action)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("callback: кодирование: %w", err)
	}
	if len(b) > MaxLen {
		return "", fmt.Errorf("%w: %s", ErrTooLong, p.Action)
	}
	return string(b), nil
}

// Decode разбирает callback_data.
func Decode(data string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Payload{}, fmt.Errorf("callback: разбор %q: %w", data, err)
	}
	if !known[p.Action] {
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownAction, p.Action)
	}
	return p, nil
}

// Of — короткая запись для кнопки без параметров.
func Of(a Action) Payload {
	return Payload{Action: a}
}
