// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование сумм, работа с временем.
package common

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"
)

// Pluralize возвращает правильную форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
//
// Пример:
//
//	Pluralize(21, "код", "кода", "кодов") → "код"
func Pluralize(n int64, one, few, many string) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeUsers возвращает форму слова «пользователь».
func PluralizeUsers(n int64) string {
	return Pluralize(n, "пользователь", "пользователя", "пользователей")
}

// PluralizeCodes возвращает форму слова «код».
func PluralizeCodes(n int64) string {
	return Pluralize(n, "код", "кода", "кодов")
}

// Currency — название валюты в сообщениях, задаётся из конфига при старте.
var Currency = "SYP"

// FormatAmount форматирует сумму: FormatAmount(20000) → "20 000 SYP"
func FormatAmount(amount int64) string {
	return FormatNumber(amount) + " " + Currency
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}

// ParseAmount разбирает целую положительную сумму, допускает пробелы между разрядами.
func ParseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, Invalid("amount", "введите целое число")
	}
	if v <= 0 {
		return 0, Invalid("amount", "сумма должна быть больше нуля")
	}
	return v, nil
}

// DayKey возвращает календарный день t в часовом поясе loc, формат 2006-01-02.
// Ключ дня для ежедневных счётчиков.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (день.месяц.год часы:минуты).
// Используется для отображения дат транзакций.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01.2006 15:04")
}

// Escape экранирует пользовательский текст для HTML-разметки Telegram.
func Escape(s string) string {
	return html.EscapeString(s)
}
