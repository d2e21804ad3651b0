package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"path"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"c2fs/pkg/vfs"

	"github.com/sourcegraph/conc"
)

// errFatal 表示请求流已经无法继续解析，需要断开连接
var errFatal = errors.New("fatal protocol error")

// Server 通过线协议对外提供一个目录
type Server struct {
	root vfs.DirectoryHandler
	log  *slog.Logger

	// 后端句柄本身不加锁，请求在这里串行执行
	mu sync.Mutex

	connMu sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     conc.WaitGroup
}

type session struct {
	remote string
	user   string
}

func NewServer(root vfs.DirectoryHandler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{root: root, log: log, conns: make(map[net.Conn]struct{})}
}

// Serve 在 ln 上接受连接直到 Close 被调用
func (s *Server) Serve(ln net.Listener) error {
	s.connMu.Lock()
	if s.closed {
		s.connMu.Unlock()
		return net.ErrClosed
	}
	s.ln = ln
	s.connMu.Unlock()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		if !s.track(nc) {
			nc.Close()
			return nil
		}
		s.wg.Go(func() { s.serveConn(nc) })
	}
}

func (s *Server) isClosed() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.closed
}

func (s *Server) track(nc net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return false
	}
	s.conns[nc] = struct{}{}
	return true
}

func (s *Server) untrack(nc net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, nc)
}

// Close 停止监听，断开所有连接并等待处理协程退出
func (s *Server) Close() error {
	s.connMu.Lock()
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for nc := range s.conns {
		nc.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return err
}

// DropConnections 断开当前所有客户端连接，监听不受影响
func (s *Server) DropConnections() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for nc := range s.conns {
		nc.Close()
	}
}

func (s *Server) serveConn(nc net.Conn) {
	defer s.untrack(nc)
	defer nc.Close()

	tp := textproto.NewConn(nc)
	sess := &session{remote: nc.RemoteAddr().String()}
	ctx := context.Background()

	for {
		line, err := tp.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				s.log.Debug("remote: connection closed", slog.String("remote", sess.remote), slog.Any("err", err))
			}
			return
		}

		start := time.Now()
		verb, p, err := s.handle(ctx, tp, sess, line)
		s.logRequest(sess, verb, p, time.Since(start), err)
		if errors.Is(err, errFatal) {
			return
		}
		if err := tp.W.Flush(); err != nil {
			return
		}
	}
}

// logRequest 每个请求一行日志，级别取决于结果
func (s *Server) logRequest(sess *session, verb, p string, d time.Duration, err error) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		if vfs.KindOf(err) == vfs.KindIO {
			level = slog.LevelError
		}
	}
	s.log.Log(context.Background(), level, "remote request",
		slog.String("verb", verb),
		slog.String("path", p),
		slog.String("user", sess.user),
		slog.String("remote", sess.remote),
		slog.Duration("dur", d),
		slog.String("err", errToString(err)),
	)
}

func errToString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// handle 解析并执行一个请求，响应写入 tp.W (由调用方 Flush)
func (s *Server) handle(ctx context.Context, tp *textproto.Conn, sess *session, line string) (verb, p string, err error) {
	args, perr := splitArgs(line)
	if perr != nil || len(args) == 0 {
		fmt.Fprintf(tp.W, "%s\r\n", formatError(vfs.NewError(vfs.KindIO, "parse", "", fmt.Errorf("malformed request"))))
		return "?", "", fmt.Errorf("%w: %q", errFatal, line)
	}
	verb, args = args[0], args[1:]
	if len(args) > 0 {
		p = args[0]
	}

	// PUT 的正文必须先读完，否则流会错位
	var body []byte
	if verb == VerbPut {
		if len(args) != 2 {
			return verb, p, fmt.Errorf("%w: PUT needs path and length", errFatal)
		}
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return verb, p, fmt.Errorf("%w: bad PUT length %q", errFatal, args[1])
		}
		if body, err = readPayload(tp.R, n); err != nil {
			return verb, p, fmt.Errorf("%w: %v", errFatal, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("🔥 PANIC RECOVERED", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = vfs.NewError(vfs.KindIO, verb, p, errors.New("internal server error: panic recovered"))
			fmt.Fprintf(tp.W, "%s\r\n", formatError(err))
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	var resp []string
	var payload []byte
	switch verb {
	case VerbList:
		resp, err = s.list(ctx, args)
	case VerbGet:
		resp, payload, err = s.get(ctx, args)
	case VerbPut:
		resp, err = s.put(ctx, args[0], body)
	case VerbMkdir:
		resp, err = s.mkdir(ctx, args)
	case VerbRm:
		resp, err = s.rm(ctx, args)
	case VerbCopy:
		resp, err = s.copy(ctx, args)
	case VerbUser:
		if len(args) != 1 {
			err = badArgs(verb)
			break
		}
		sess.user = args[0]
		resp = []string{statusOK}
	default:
		err = vfs.NewError(vfs.KindIO, verb, "", errors.New("unknown verb"))
	}

	if err != nil {
		fmt.Fprintf(tp.W, "%s\r\n", formatError(err))
		return verb, p, err
	}
	for _, l := range resp {
		fmt.Fprintf(tp.W, "%s\r\n", l)
	}
	if payload != nil {
		tp.W.Write(payload)
	}
	return verb, p, nil
}

func badArgs(verb string) error {
	return vfs.NewError(vfs.KindIO, verb, "", errors.New("wrong number of arguments"))
}

func segments(p string) []string {
	clean := strings.Trim(path.Clean("/"+p), "/")
	if clean == "" {
		return nil
	}
	return strings.Split(clean, "/")
}

func (s *Server) dir(ctx context.Context, p string) (vfs.DirectoryHandler, error) {
	return vfs.WalkPath(ctx, s.root, segments(p))
}

// parent 返回 p 的父目录与最后一级名字
func (s *Server) parent(ctx context.Context, op, p string) (vfs.DirectoryHandler, string, error) {
	segs := segments(p)
	if len(segs) == 0 {
		return nil, "", vfs.NewError(vfs.KindPermissionDenied, op, p, errors.New("operation not allowed on root"))
	}
	d, err := vfs.WalkPath(ctx, s.root, segs[:len(segs)-1])
	if err != nil {
		return nil, "", err
	}
	return d, segs[len(segs)-1], nil
}

func (s *Server) writableParent(ctx context.Context, op, p string) (vfs.WritableDirectoryHandler, string, error) {
	d, name, err := s.parent(ctx, op, p)
	if err != nil {
		return nil, "", err
	}
	w, err := vfs.Writable(d)
	if err != nil {
		return nil, "", err
	}
	return w, name, nil
}

func (s *Server) list(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 1 {
		return nil, badArgs(VerbList)
	}
	d, err := s.dir(ctx, args[0])
	if err != nil {
		return nil, err
	}
	var lines []string
	err = d.ReadContent(ctx, func(info vfs.Info) error {
		lines = append(lines, formatEntry(info))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string{fmt.Sprintf("%s %d", statusOK, len(lines))}, lines...), nil
}

func (s *Server) get(ctx context.Context, args []string) ([]string, []byte, error) {
	if len(args) != 1 {
		return nil, nil, badArgs(VerbGet)
	}
	d, name, err := s.parent(ctx, VerbGet, args[0])
	if err != nil {
		return nil, nil, err
	}
	data, err := d.GetFileByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return []string{fmt.Sprintf("%s %d", statusOK, len(data))}, data, nil
}

func (s *Server) put(ctx context.Context, p string, body []byte) ([]string, error) {
	d, name, err := s.writableParent(ctx, VerbPut, p)
	if err != nil {
		return nil, err
	}
	info, err := d.CreateFile(ctx, name, body)
	if err != nil {
		return nil, err
	}
	return []string{statusOK, formatEntry(info)}, nil
}

func (s *Server) mkdir(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 1 {
		return nil, badArgs(VerbMkdir)
	}
	d, name, err := s.writableParent(ctx, VerbMkdir, args[0])
	if err != nil {
		return nil, err
	}
	info, err := d.CreateDirectory(ctx, name)
	if err != nil {
		return nil, err
	}
	return []string{statusOK, formatEntry(info)}, nil
}

// rm 删除文件或空目录；第二个参数 f|d 用于校验类型
func (s *Server) rm(ctx context.Context, args []string) ([]string, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, badArgs(VerbRm)
	}
	d, name, err := s.writableParent(ctx, VerbRm, args[0])
	if err != nil {
		return nil, err
	}

	kind := ""
	if len(args) == 2 {
		kind = args[1]
	}
	if kind == "" {
		info, ok, err := d.FindItem(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, vfs.NewError(vfs.KindNotFound, VerbRm, args[0], nil)
		}
		kind = "f"
		if info.IsDir() {
			kind = "d"
		}
	}

	switch kind {
	case "f":
		err = d.RemoveFile(ctx, name)
	case "d":
		err = d.RemoveDirectory(ctx, name)
	default:
		return nil, badArgs(VerbRm)
	}
	if err != nil {
		return nil, err
	}
	return []string{statusOK}, nil
}

// copy 在服务端完成复制，目标后端有快速路径时优先使用
func (s *Server) copy(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, badArgs(VerbCopy)
	}
	src, srcName, err := s.parent(ctx, VerbCopy, args[0])
	if err != nil {
		return nil, err
	}
	dst, dstName, err := s.writableParent(ctx, VerbCopy, args[1])
	if err != nil {
		return nil, err
	}

	srcInfo, ok, err := src.FindItem(ctx, srcName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, VerbCopy, args[0], nil)
	}
	if !srcInfo.IsFile() {
		return nil, vfs.NewError(vfs.KindTypeConflict, VerbCopy, args[0], errors.New("is a directory"))
	}

	info, ok, err := dst.CopyFile(ctx, src, srcInfo, dstName)
	if err != nil {
		return nil, err
	}
	if !ok {
		data, err := src.GetFile(ctx, srcInfo)
		if err != nil {
			return nil, err
		}
		if info, err = dst.CreateFile(ctx, dstName, data); err != nil {
			return nil, err
		}
	}
	return []string{statusOK, formatEntry(info)}, nil
}
