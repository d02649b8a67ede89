// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import (
	"errors"
	"fmt"
)

// Ошибки кошелька (балансы, переводы)
var (
	// ErrInsufficientBalance — недостаточно средств на счёте
	ErrInsufficientBalance = errors.New("недостаточно средств на счёте")
	// ErrSelfTransfer — попытка перевести средства самому себе
	ErrSelfTransfer = errors.New("нельзя переводить средства самому себе")
	// ErrRequestNotFound — заявка на пополнение не найдена
	ErrRequestNotFound = errors.New("заявка не найдена")
	// ErrRequestResolved — заявка уже обработана
	ErrRequestResolved = errors.New("заявка уже обработана")
)

// Ошибки аккаунтов
var (
	// ErrAccountNotFound — аккаунт не найден
	ErrAccountNotFound = errors.New("аккаунт не найден")
	// ErrAlreadyRegistered — у пользователя уже есть аккаунт
	ErrAlreadyRegistered = errors.New("у вас уже есть аккаунт")
	// ErrNoCredentialsAvailable — пул готовых учёток пуст
	ErrNoCredentialsAvailable = errors.New("нет свободных учётных данных")
	// ErrCredentialTaken — имя учётки уже занято
	ErrCredentialTaken = errors.New("имя учётной записи уже занято")
	// ErrCredentialNotFound — учётки нет в пуле
	ErrCredentialNotFound = errors.New("учётная запись не найдена в пуле")
)

// Ошибки подарочных кодов
var (
	// ErrGiftCodeNotFound — код не существует
	ErrGiftCodeNotFound = errors.New("подарочный код не найден")
	// ErrGiftCodeUsed — код уже активирован
	ErrGiftCodeUsed = errors.New("подарочный код уже использован")
)

// Ошибки админки
var (
	// ErrUnauthorized — команда админа от обычного пользователя
	ErrUnauthorized = errors.New("нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
)

// ValidationError — некорректный ввод пользователя. Всегда исправим:
// шаг диалога остаётся тем же, пользователь вводит заново.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid создаёт ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation сообщает, является ли err ошибкой валидации.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
