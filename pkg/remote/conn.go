package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"sync"
	"time"

	"c2fs/pkg/vfs"
)

const DefaultDialTimeout = 5 * time.Second

type DialOptions struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Conn 是到一个 HOST:PORT 的物理连接，可以被多个用户上下文共享
//
// 同一时刻只有一个请求在途。IO 失败时自动重连并重试一次；
// 一旦发生过用户切换，重连会清掉服务端的会话状态，因此自动重连随之关闭。
type Conn struct {
	addr    string
	timeout time.Duration
	log     *slog.Logger

	mu            sync.Mutex
	nc            net.Conn
	tp            *textproto.Conn
	user          string
	autoReconnect bool
	dials         int
}

// Dial 建立连接
func Dial(ctx context.Context, addr string, opts DialOptions) (*Conn, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultDialTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Conn{addr: addr, timeout: opts.Timeout, log: opts.Logger, autoReconnect: true}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) Addr() string { return c.addr }

// Dials 返回建立过的物理连接次数
func (c *Conn) Dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

// AutoReconnect 报告 IO 失败后是否还会自动重连
func (c *Conn) AutoReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoReconnect
}

func (c *Conn) connect(ctx context.Context) error {
	d := net.Dialer{Timeout: c.timeout}
	nc, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return vfs.NewError(vfs.KindConnectionFailure, "dial", c.addr, err)
	}
	c.nc = nc
	c.tp = textproto.NewConn(nc)
	c.dials++
	return nil
}

func (c *Conn) drop() {
	if c.tp != nil {
		c.tp.Close()
	}
	c.nc, c.tp = nil, nil
}

// reconnect 建立新连接并恢复当前用户
func (c *Conn) reconnect(ctx context.Context) error {
	c.drop()
	c.log.Debug("remote: reconnecting", slog.String("addr", c.addr))
	if err := c.connect(ctx); err != nil {
		return err
	}
	if c.user != "" {
		return c.exchange(ctx, VerbUser, c.user, formatRequest(VerbUser, c.user), nil, nil)
	}
	return nil
}

// switchUser 让会话切换到 user
// 已有用户时，切换触发一次重连 (全新的会话)，之后不再自动重连
func (c *Conn) switchUser(ctx context.Context, user string) error {
	if user == c.user {
		return nil
	}
	if c.user != "" && c.autoReconnect {
		c.autoReconnect = false
		c.user = ""
		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
	if c.nc == nil {
		return vfs.NewError(vfs.KindConnectionFailure, VerbUser, c.addr, errors.New("connection closed"))
	}
	if err := c.exchange(ctx, VerbUser, user, formatRequest(VerbUser, user), nil, nil); err != nil {
		return err
	}
	c.user = user
	return nil
}

// exchange 发送一个请求并读取响应
// read 在 OK 之后被调用，n 为 OK 后面的数字
func (c *Conn) exchange(ctx context.Context, op, path, line string, body []byte, read func(r *bufio.Reader, n int64) error) error {
	if dl, ok := ctx.Deadline(); ok {
		c.nc.SetDeadline(dl)
	} else {
		c.nc.SetDeadline(time.Time{})
	}

	w := c.tp.W
	if _, err := w.WriteString(line + "\r\n"); err != nil {
		return ioError(op, path, err)
	}
	if body != nil {
		if _, err := w.Write(body); err != nil {
			return ioError(op, path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return ioError(op, path, err)
	}

	status, err := c.tp.ReadLine()
	if err != nil {
		return ioError(op, path, err)
	}
	n, err := parseStatus(status, op, path)
	if err != nil {
		return err
	}
	if read != nil {
		if err := read(c.tp.R, n); err != nil {
			return ioError(op, path, err)
		}
	}
	return nil
}

// ioFailure 标记连接层面的失败，此时流已不同步
type ioFailure struct{ err *vfs.Error }

func (e *ioFailure) Error() string { return e.err.Error() }
func (e *ioFailure) Unwrap() error { return e.err }

func ioError(op, path string, err error) error {
	return &ioFailure{vfs.NewError(vfs.KindConnectionFailure, op, path, err)}
}

// call 以 user 的身份执行一个请求
// 连接层面的失败在允许时重连并重试一次
func (c *Conn) call(ctx context.Context, user, op, path, line string, body []byte, read func(r *bufio.Reader, n int64) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 0; ; attempt++ {
		err := c.ensure(ctx)
		if err == nil {
			err = c.switchUser(ctx, user)
		}
		if err == nil {
			err = c.exchange(ctx, op, path, line, body, read)
		}
		if err == nil {
			return nil
		}
		var f *ioFailure
		if !errors.As(err, &f) {
			return err
		}

		// 流已经不同步了，不能再复用
		c.drop()
		if attempt > 0 || !c.autoReconnect {
			return f.err
		}
		c.log.Debug("remote: retrying after io failure", slog.String("op", op), slog.Any("err", f.err))
	}
}

// ensure 在连接被丢弃后按策略重建
func (c *Conn) ensure(ctx context.Context) error {
	if c.nc != nil {
		return nil
	}
	if !c.autoReconnect {
		return vfs.NewError(vfs.KindConnectionFailure, "reconnect", c.addr, errors.New("automatic reconnection disabled after user switch"))
	}
	return c.reconnect(ctx)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
	c.autoReconnect = false
	return nil
}

func readPayload(r *bufio.Reader, n int64) ([]byte, error) {
	if n < 0 || n > MaxPayload {
		return nil, fmt.Errorf("invalid payload length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
