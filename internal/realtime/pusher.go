package realtime

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/pkg/event"
)

// BuildFunc は配信するエンベロープを組み立てる。
// 付加情報の解決など時間のかかる処理はここで行い、呼び出し元のリクエストを待たせない。
type BuildFunc func(ctx context.Context) (*event.Envelope, error)

// Deliverer はエンベロープをユーザーの全チャネルへ届ける。
type Deliverer interface {
	Deliver(ctx context.Context, userID string, env *event.Envelope) error
}

// PusherStats はPusherの累計カウンタ。
type PusherStats struct {
	Enqueued  uint64 `json:"enqueued"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Delivered uint64 `json:"delivered"`
}

type pushJob struct {
	userID string
	build  BuildFunc
}

// Pusher は受信者IDでシャードしたワーカーでプッシュ配信を行う。
// 同じ受信者へのジョブは同じワーカーが投入順に処理するため、配信順序が保たれる。
type Pusher struct {
	deliverer  Deliverer
	logger     zerolog.Logger
	jobTimeout time.Duration

	queues []chan pushJob

	mu      sync.RWMutex
	stopped bool
	started bool
	wg      sync.WaitGroup

	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	delivered atomic.Uint64
}

// NewPusher はPusherを生成する。ワーカーはStartで起動する。
// workersはシャード数、queueSizeはシャードごとのキュー長。
func NewPusher(deliverer Deliverer, workers, queueSize int, logger zerolog.Logger) *Pusher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	queues := make([]chan pushJob, workers)
	for i := range queues {
		queues[i] = make(chan pushJob, queueSize)
	}
	return &Pusher{
		deliverer:  deliverer,
		logger:     logger,
		jobTimeout: 10 * time.Second,
		queues:     queues,
	}
}

// Start はワーカーを起動する。ctxがキャンセルされてもキュー済みのジョブは処理を続け、
// 停止はStopで行う。
func (p *Pusher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	base := context.WithoutCancel(ctx)
	for i, q := range p.queues {
		p.wg.Add(1)
		go func(shard int, q <-chan pushJob) {
			defer p.wg.Done()
			for job := range q {
				p.run(base, job)
			}
			p.logger.Debug().Int("shard", shard).Msg("配信ワーカーを停止しました")
		}(i, q)
	}
	p.logger.Info().Int("workers", len(p.queues)).Msg("配信ワーカーを起動しました")
}

// Push は配信ジョブをキューに積む。ブロックしない。
// キューが満杯、または停止済みの場合はジョブを破棄してfalseを返す。
func (p *Pusher) Push(userID string, build BuildFunc) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.dropped.Add(1)
		p.logger.Warn().Str("user_id", userID).Msg("停止後の配信要求を破棄しました")
		return false
	}

	select {
	case p.queues[p.shard(userID)] <- pushJob{userID: userID, build: build}:
		p.enqueued.Add(1)
		return true
	default:
		p.dropped.Add(1)
		p.logger.Warn().Str("user_id", userID).Msg("配信キューが満杯のため破棄しました")
		return false
	}
}

// PushEnvelope は組み立て済みのエンベロープを配信キューに積む。
func (p *Pusher) PushEnvelope(userID string, env *event.Envelope) bool {
	return p.Push(userID, func(context.Context) (*event.Envelope, error) {
		return env, nil
	})
}

// Stop は新規の受け付けを止め、キュー済みのジョブを処理し終えるまで待つ。
func (p *Pusher) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info().
		Uint64("enqueued", p.enqueued.Load()).
		Uint64("dropped", p.dropped.Load()).
		Uint64("failed", p.failed.Load()).
		Msg("配信を停止しました")
}

// Stats は累計カウンタのスナップショットを返す。
func (p *Pusher) Stats() PusherStats {
	return PusherStats{
		Enqueued:  p.enqueued.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
		Delivered: p.delivered.Load(),
	}
}

func (p *Pusher) shard(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *Pusher) run(base context.Context, job pushJob) {
	ctx, cancel := context.WithTimeout(base, p.jobTimeout)
	defer cancel()

	if err := p.execute(ctx, job); err != nil {
		p.failed.Add(1)
		p.logger.Warn().Err(err).Str("user_id", job.userID).Msg("プッシュ配信に失敗しました")
		return
	}
	p.delivered.Add(1)
}

func (p *Pusher) execute(ctx context.Context, job pushJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("配信ジョブでpanicが発生: %v", r)
		}
	}()

	env, err := job.build(ctx)
	if err != nil {
		return fmt.Errorf("エンベロープの組み立てに失敗: %w", err)
	}
	if env == nil {
		return nil
	}
	return p.deliverer.Deliver(ctx, job.userID, env)
}
