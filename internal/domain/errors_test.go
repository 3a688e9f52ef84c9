package domain

import (
	"errors"
	"io"
	"testing"
)

// TestValidationError はValidationErrorの振る舞いを検証する。
func TestValidationError(t *testing.T) {
	t.Parallel()

	t.Run("ErrValidationとして判定できること", func(t *testing.T) {
		t.Parallel()

		err := NewValidationError("text", "本文が空です")
		if !errors.Is(err, ErrValidation) {
			t.Errorf("errors.Is(err, ErrValidation) = false, want true")
		}

		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatal("errors.As()でValidationErrorを取り出せない")
		}
		if ve.Field != "text" {
			t.Errorf("Field = %q, want %q", ve.Field, "text")
		}
		if err.Error() != "text: 本文が空です" {
			t.Errorf("Error() = %q", err.Error())
		}
	})
}

// TestPersistenceError はPersistenceErrorのラップを検証する。
func TestPersistenceError(t *testing.T) {
	t.Parallel()

	err := PersistenceError("通知の保存", io.ErrUnexpectedEOF)
	if !errors.Is(err, ErrPersistence) {
		t.Error("errors.Is(err, ErrPersistence) = false, want true")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("元のエラーが保持されていない")
	}
}

// TestKindValid は通知種別の判定を検証する。
func TestKindValid(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindLike, KindComment, KindFollow} {
		if !k.Valid() {
			t.Errorf("%q.Valid() = false, want true", k)
		}
	}
	if Kind("mention").Valid() {
		t.Error("未知の種別がValidと判定された")
	}
}
