package realtime

import (
	"context"
	"sync"

	"github.com/breakoutarea/realtime/pkg/event"
)

// fakeChannel は送信内容を記録するテスト用のチャネル。
type fakeChannel struct {
	id      string
	sendErr error

	mu        sync.Mutex
	sent      [][]byte
	closed    bool
	closeCode int
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id}
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeChannel) Close(code int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
}

func (f *fakeChannel) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// delivered は配信されたエンベロープの記録。
type delivered struct {
	userID string
	env    *event.Envelope
}

// recordingDeliverer は配信要求を記録するテスト用のDeliverer。
type recordingDeliverer struct {
	mu   sync.Mutex
	got  []delivered
	fail error
}

func (r *recordingDeliverer) Deliver(_ context.Context, userID string, env *event.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.got = append(r.got, delivered{userID: userID, env: env})
	return nil
}

func (r *recordingDeliverer) all() []delivered {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]delivered, len(r.got))
	copy(out, r.got)
	return out
}
