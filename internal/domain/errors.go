package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation は入力値が不正であることを表す。呼び出し元へ同期的に返し、再試行しない。
	ErrValidation = errors.New("入力値が不正です")
	// ErrPersistence は永続化層での読み書きに失敗したことを表す。
	ErrPersistence = errors.New("永続化に失敗しました")
	// ErrNotFound は対象のレコードが存在しないことを表す。
	ErrNotFound = errors.New("対象が見つかりません")
	// ErrForbidden は対象のレコードを操作する権限がないことを表す。
	ErrForbidden = errors.New("操作する権限がありません")
)

// ValidationError はフィールド単位のバリデーションエラー。
type ValidationError struct {
	// Field は不正だったフィールド名。
	Field string
	// Message はエラーの説明。
	Message string
}

// Error はエラーメッセージを返す。
func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Unwrap は errors.Is(err, ErrValidation) を成立させる。
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError はフィールド名とメッセージからバリデーションエラーを生成する。
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError は永続化層のエラーを ErrPersistence でラップする。
func PersistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
