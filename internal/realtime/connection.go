package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait は1フレームの書き込みに許容する時間。
	writeWait = 10 * time.Second
	// pongWait はクライアントからのpongを待つ時間。これを過ぎると切断とみなす。
	pongWait = 60 * time.Second
	// pingPeriod はサーバーからpingを送る間隔。pongWaitより短くすること。
	pingPeriod = 30 * time.Second
	// closeGrace はクローズフレームの送信に許容する時間。
	closeGrace = time.Second
	// maxFrameSize はクライアントから受け付けるフレームの最大サイズ。
	maxFrameSize = 4 << 10
)

var (
	// ErrConnectionClosed は閉じた接続へ送信しようとしたことを表す。
	ErrConnectionClosed = errors.New("接続は既に閉じられています")
	// ErrSendBufferFull は送信バッファが溢れたことを表す。接続は閉じられる。
	ErrSendBufferFull = errors.New("送信バッファが溢れました")
)

// Connection はWebSocket接続をラップし、送信をバッファ付きチャネル経由で直列化する。
// 並行利用に対して安全。
type Connection struct {
	id     string
	userID string

	ws      *websocket.Conn
	send    chan []byte
	started atomic.Bool

	once sync.Once
	done chan struct{}
	// closeMsg はdoneを閉じる前に一度だけ設定される。
	closeMsg []byte
}

// NewConnection はユーザーのWebSocket接続からConnectionを生成する。
// bufferSizeは送信キューの長さ。
func NewConnection(userID string, ws *websocket.Conn, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 128
	}
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

// ID は接続の識別子を返す。
func (c *Connection) ID() string { return c.id }

// UserID は接続を所有するユーザーIDを返す。
func (c *Connection) UserID() string { return c.userID }

// Done は接続が閉じられると閉じるチャネルを返す。
func (c *Connection) Done() <-chan struct{} { return c.done }

// Start は書き込みループを起動する。接続ごとに一度だけ呼ぶこと。
// 起動後はソケットへの書き込みとクローズをすべて書き込みループが行う。
func (c *Connection) Start() {
	c.started.Store(true)
	go c.writeLoop()
}

// Send はペイロードを送信キューに積む。
// クライアントが遅くバッファが満杯の場合は、背圧を有界に保つため接続を閉じる。
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.Close(websocket.CloseTryAgainLater, "send buffer full")
		return ErrSendBufferFull
	}
}

// Close は接続を終了し書き込みループを止める。複数回呼んでも安全。
// ブロックしない。書き込み中のフレームは書き込み期限を過去にして打ち切り、
// クローズフレームの送信とソケットの解放は書き込みループに任せる。
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		c.closeMsg = websocket.FormatCloseMessage(code, reason)
		close(c.done)
		if !c.started.Load() {
			c.shutdown()
			return
		}
		_ = c.ws.NetConn().SetWriteDeadline(time.Now())
	})
}

// ReadLoop はクライアントからのフレームを読み取り、handleへ渡す。
// 正常な切断ではnilを、それ以外の読み取りエラーやhandleのエラーではそのエラーを返す。
func (c *Connection) ReadLoop(handle func(data []byte) error) error {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if isNormalClose(err) {
				return nil
			}
			select {
			case <-c.done:
				return nil
			default:
			}
			return err
		}
		if err := handle(data); err != nil {
			return err
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		<-c.done
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}

// shutdown はクローズフレームを送れれば送り、ソケットを閉じる。
// 書き込みが失敗済みの接続ではWriteControlはすぐにエラーを返す。
func (c *Connection) shutdown() {
	_ = c.ws.WriteControl(websocket.CloseMessage, c.closeMsg, time.Now().Add(closeGrace))
	_ = c.ws.Close()
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, websocket.ErrCloseSent)
}
