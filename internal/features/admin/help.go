package admin

import (
	"sort"
	"strings"
)

// topic — справка по одной команде админа.
type topic struct {
	usage   string
	about   string
	example string
}

var topics = map[string]topic{
	"login":          {"/login &lt;пароль&gt;", "Открыть сессию админа", "/login secret"},
	"logout":         {"/logout", "Завершить сессию админа", ""},
	"broadcast":      {"/broadcast &lt;текст&gt;", "Рассылка всем пользователям", "/broadcast Бот обновлён!"},
	"send":           {"/send &lt;id&gt; &lt;текст&gt;", "Сообщение одному пользователю", "/send 123456789 Здравствуйте!"},
	"adduser":        {"/adduser &lt;id&gt; &lt;пароль&gt; [имя]", "Создать аккаунт вручную", "/adduser 123456789 pass123 user123"},
	"deluser":        {"/deluser &lt;id|имя&gt;", "Удалить аккаунт", "/deluser user123"},
	"addbalance":     {"/addbalance &lt;id&gt; &lt;сумма&gt; &lt;бонус%&gt; &lt;номер операции&gt; &lt;способ&gt; [заметка]", "Зачислить пополнение", "/addbalance 123456789 100000 10 TR123 syriatel первое пополнение"},
	"deductbalance":  {"/deductbalance &lt;id&gt; &lt;сумма&gt;", "Списать с баланса", "/deductbalance 123456789 50000"},
	"users":          {"/users", "Список пользователей", ""},
	"history":        {"/history &lt;id&gt;", "Последние операции пользователя", "/history 123456789"},
	"listpredefined": {"/listpredefined", "Пул готовых учёток", ""},
	"addpredefined":  {"/addpredefined &lt;имя&gt; &lt;пароль&gt;", "Добавить учётку в пул", "/addpredefined user123 pass123"},
	"delpredefined":  {"/delpredefined &lt;имя&gt;", "Удалить учётку из пула", "/delpredefined user123"},
	"setpayaddr":     {"/setpayaddr &lt;номер|000&gt;", "Номер Syriatel Cash для пополнения, 000 выключает", "/setpayaddr 0912345678"},
	"setcontactaddr": {"/setcontactaddr &lt;контакт|000&gt;", "Контакт поддержки, 000 скрывает", "/setcontactaddr @support"},
	"giftcode":       {"/giftcode &lt;сумма&gt; &lt;количество&gt;", "Выпустить подарочные коды", "/giftcode 1000 5"},
	"giftcodes":      {"/giftcodes", "Выпущенные коды и их статус", ""},
	"ban":            {"/ban &lt;id&gt; [причина]", "Заблокировать пользователя", "/ban 123456789 мошенничество"},
	"unban":          {"/unban &lt;id&gt;", "Разблокировать пользователя", "/unban 123456789"},
}

// Commands — все команды админа.
func Commands() []string {
	out := make([]string, 0, len(topics))
	for name := range topics {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

const userHelp = `📋 Команды:

/start — начать работу с ботом
/help — эта справка

Через меню доступны:
• создание аккаунта
• пополнение и вывод
• реферальная программа
• подарочные коды и подарок баланса
• поддержка и правила`

func adminHelp() string {
	var sb strings.Builder
	sb.WriteString("📋 Команды админа:\n\n")
	for _, name := range Commands() {
		t := topics[name]
		sb.WriteString(t.usage + " — " + t.about + "\n")
	}
	sb.WriteString("\nПодробнее: /help &lt;команда&gt;, например /help addbalance")
	return sb.String()
}

func topicHelp(name string) (string, bool) {
	t, ok := topics[strings.ToLower(strings.TrimPrefix(name, "/"))]
	if !ok {
		return "", false
	}
	text := "Команда: " + t.usage + "\n" + t.about
	if t.example != "" {
		text += "\nПример: <code>" + t.example + "</code>"
	}
	return text, true
}
