package realtime

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/pkg/event"
)

func TestLocalDelivery_Deliver(t *testing.T) {
	t.Parallel()

	t.Run("正常系_全チャネルに同一のペイロードが届く", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry(zerolog.Nop())
		tab1 := newFakeChannel("tab1")
		tab2 := newFakeChannel("tab2")
		other := newFakeChannel("other")
		r.Register("u1", tab1)
		r.Register("u1", tab2)
		r.Register("u2", other)

		env, err := event.New(event.TypeMessageReceived, map[string]string{"text": "hi"})
		if err != nil {
			t.Fatalf("エンベロープの生成に失敗: %v", err)
		}

		d := NewLocalDelivery(r, zerolog.Nop())
		if err := d.Deliver(context.Background(), "u1", env); err != nil {
			t.Fatalf("配信に失敗: %v", err)
		}

		m1, m2 := tab1.messages(), tab2.messages()
		if len(m1) != 1 || len(m2) != 1 {
			t.Fatalf("配信数が不正: tab1=%d, tab2=%d", len(m1), len(m2))
		}
		if !bytes.Equal(m1[0], m2[0]) {
			t.Error("タブ間でペイロードが異なる")
		}
		if len(other.messages()) != 0 {
			t.Error("他ユーザーに配信された")
		}

		got, err := event.Unmarshal(m1[0])
		if err != nil {
			t.Fatalf("ペイロードの復元に失敗: %v", err)
		}
		if got.ID != env.ID || got.Type != event.TypeMessageReceived {
			t.Errorf("配信内容が不正: %+v", got)
		}
	})

	t.Run("正常系_オフラインユーザーへの配信はエラーにならない", func(t *testing.T) {
		t.Parallel()

		d := NewLocalDelivery(NewRegistry(zerolog.Nop()), zerolog.Nop())
		env, _ := event.New(event.TypeNotificationNew, nil)

		if err := d.Deliver(context.Background(), "nobody", env); err != nil {
			t.Errorf("オフライン配信でエラー: %v", err)
		}
	})
}

func TestLocalDelivery_Send(t *testing.T) {
	t.Parallel()

	t.Run("異常系_送信に失敗したチャネルだけが登録解除される", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry(zerolog.Nop())
		broken := newFakeChannel("broken")
		broken.sendErr = errors.New("socket closed")
		healthy := newFakeChannel("healthy")
		r.Register("u1", broken)
		r.Register("u1", healthy)

		d := NewLocalDelivery(r, zerolog.Nop())
		if n := d.Send("u1", []byte(`{}`)); n != 1 {
			t.Errorf("成功数が不正: got=%d, want=1", n)
		}

		if !broken.isClosed() {
			t.Error("失敗したチャネルが閉じられていない")
		}
		if healthy.isClosed() {
			t.Error("正常なチャネルが閉じられた")
		}
		chans := r.ChannelsFor("u1")
		if len(chans) != 1 || chans[0].ID() != "healthy" {
			t.Errorf("登録状態が不正: %v", chans)
		}
	})
}
