// Package factory 把描述符字符串解析成 DirectoryHandler
//
// 语法:
//
//	PATH                             本地目录
//	ca:SPEC                          SPEC 之上的内容寻址层
//	snapshot:NAME:SPEC               只读快照
//	int:[UNIQ]                       内存池，UNIQ 区分不同实例
//	c2file://[USER@]HOST:PORT/PATH   远程目录
//	s3://BUCKET[/PREFIX]             S3 桶
//	CHILDPATH@BACKEND                BACKEND 里的子目录
//
// CHILDPATH 的各段按 URL 转义，名字里的 '@' 写作 %40。
// 含 '@' 的描述符如果本身就是一个本地目录，按本地目录处理。
//
// 相同的描述符在同一个 Factory 内总是返回同一个 handler 对象。
// Factory 不是并发安全的。
package factory

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"c2fs/pkg/ca"
	"c2fs/pkg/refs"
	"c2fs/pkg/remote"
	"c2fs/pkg/storage"
	"c2fs/pkg/storage/cache"
	"c2fs/pkg/storage/disk"
	"c2fs/pkg/storage/memory"
	"c2fs/pkg/storage/pool"
	"c2fs/pkg/storage/s3"
	"c2fs/pkg/vfs"
)

const (
	PrefixCA       = "ca:"
	PrefixSnapshot = "snapshot:"
	PrefixInternal = "int:"
	PrefixRemote   = "c2file://"
	PrefixS3       = "s3://"
)

type Options struct {
	Logger *slog.Logger

	DialTimeout time.Duration

	// S3 为 nil 时使用 SDK 默认的凭证链
	S3 *s3.Config

	// 以下作用于每个 ca 对象池
	CompressionLevel int
	// Cache 非 nil 时对象存在性查询走 Redis
	Cache *cache.Config
	// RefcountDir 非空时引用计数存到该目录下的 BadgerDB
	RefcountDir string
	Indexer     ca.CommitIndexer
}

// Factory 持有所有已创建的 handler、连接与对象池
type Factory struct {
	opts Options
	log  *slog.Logger

	handlers map[string]vfs.DirectoryHandler
	conns    map[string]*remote.Conn
	roots    map[string]*ca.Root
	s3client *s3.Client

	closers []io.Closer
}

func New(opts Options) *Factory {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Factory{
		opts:     opts,
		log:      log,
		handlers: make(map[string]vfs.DirectoryHandler),
		conns:    make(map[string]*remote.Conn),
		roots:    make(map[string]*ca.Root),
	}
}

// Resolve 返回描述符对应的 handler，结果被缓存到 Factory 销毁为止
func (f *Factory) Resolve(ctx context.Context, desc string) (vfs.DirectoryHandler, error) {
	if h, ok := f.handlers[desc]; ok {
		return h, nil
	}
	h, err := f.create(ctx, desc)
	if err != nil {
		var ve *vfs.Error
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("%s: %w", desc, err)
		}
		return nil, fmt.Errorf("failed to resolve %q: %w", desc, err)
	}
	f.handlers[desc] = h
	return h, nil
}

// ResolveWritable 同 Resolve，但要求结果可写
func (f *Factory) ResolveWritable(ctx context.Context, desc string) (vfs.WritableDirectoryHandler, error) {
	h, err := f.Resolve(ctx, desc)
	if err != nil {
		return nil, err
	}
	w, err := vfs.Writable(h)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc, err)
	}
	return w, nil
}

func (f *Factory) create(ctx context.Context, desc string) (vfs.DirectoryHandler, error) {
	switch {
	case strings.HasPrefix(desc, PrefixCA):
		root, err := f.Root(ctx, desc[len(PrefixCA):])
		if err != nil {
			return nil, err
		}
		return root.CreateRootHandler(ctx)

	case strings.HasPrefix(desc, PrefixSnapshot):
		rest := desc[len(PrefixSnapshot):]
		name, spec, ok := strings.Cut(rest, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected snapshot:NAME:SPEC")
		}
		root, err := f.Root(ctx, spec)
		if err != nil {
			return nil, err
		}
		return root.OpenSnapshot(ctx, name)

	case strings.HasPrefix(desc, PrefixInternal):
		return memory.New(), nil

	case strings.HasPrefix(desc, PrefixRemote):
		return f.remote(ctx, desc)

	case strings.HasPrefix(desc, PrefixS3):
		return f.s3(ctx, desc)
	}

	if strings.Contains(desc, "@") && !isNativeDir(desc) {
		child, backend, _ := strings.Cut(desc, "@")
		h, err := f.Resolve(ctx, backend)
		if err != nil {
			return nil, err
		}
		return vfs.WalkPath(ctx, h, splitPath(child))
	}

	if desc == "" {
		return nil, fmt.Errorf("empty descriptor")
	}
	return disk.NewHandler(desc)
}

func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s == "" || s == "." {
			continue
		}
		// 不是合法转义的段按原样使用
		if u, err := url.PathUnescape(s); err == nil {
			s = u
		}
		segs = append(segs, s)
	}
	return segs
}

var segmentEscaper = strings.NewReplacer("%", "%25", "@", "%40")

func escapeSegment(name string) string { return segmentEscaper.Replace(name) }

func isNativeDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

func (f *Factory) remote(ctx context.Context, desc string) (vfs.DirectoryHandler, error) {
	u, err := url.Parse(desc)
	if err != nil {
		return nil, err
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("expected c2file://[USER@]HOST:PORT/PATH")
	}

	conn, ok := f.conns[u.Host]
	if !ok {
		conn, err = remote.Dial(ctx, u.Host, remote.DialOptions{Timeout: f.opts.DialTimeout, Logger: f.log})
		if err != nil {
			return nil, err
		}
		f.conns[u.Host] = conn
		f.closers = append(f.closers, conn)
	}
	return remote.NewHandler(conn, u.User.Username(), u.Path), nil
}

func (f *Factory) s3(ctx context.Context, desc string) (vfs.DirectoryHandler, error) {
	bucket, prefix, _ := strings.Cut(desc[len(PrefixS3):], "/")
	if bucket == "" {
		return nil, fmt.Errorf("expected s3://BUCKET[/PREFIX]")
	}
	prefix, err := url.PathUnescape(prefix)
	if err != nil {
		return nil, err
	}
	if f.s3client == nil {
		cfg := s3.Config{}
		if f.opts.S3 != nil {
			cfg = *f.opts.S3
		}
		c, err := s3.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		f.s3client = c
	}
	return s3.NewHandler(ctx, f.s3client, bucket, prefix)
}

// Root 打开 (或返回已打开的) spec 上的 ca 对象池
func (f *Factory) Root(ctx context.Context, spec string) (*ca.Root, error) {
	if r, ok := f.roots[spec]; ok {
		return r, nil
	}
	backend, err := f.ResolveWritable(ctx, spec)
	if err != nil {
		return nil, err
	}

	opts := ca.Options{
		CompressionLevel: f.opts.CompressionLevel,
		Indexer:          f.opts.Indexer,
		Logger:           f.log,
	}
	if f.opts.Cache != nil {
		store, err := f.cachedStore(ctx, backend, spec)
		if err != nil {
			return nil, err
		}
		opts.Store = store
	}
	if f.opts.RefcountDir != "" {
		sum := sha1.Sum([]byte(spec))
		counter, err := refs.OpenBadgerCounter(filepath.Join(f.opts.RefcountDir, hex.EncodeToString(sum[:8])))
		if err != nil {
			return nil, err
		}
		opts.Counter = counter
	}

	root, err := ca.NewRoot(ctx, backend, opts)
	if err != nil {
		if opts.Counter != nil {
			opts.Counter.Close()
		}
		return nil, err
	}
	f.roots[spec] = root
	f.closers = append(f.closers, root)
	return root, nil
}

func (f *Factory) cachedStore(ctx context.Context, backend vfs.WritableDirectoryHandler, spec string) (storage.ObjectStore, error) {
	base, err := pool.NewStore(ctx, backend, f.opts.CompressionLevel)
	if err != nil {
		return nil, err
	}
	cfg := *f.opts.Cache
	cfg.Namespace = spec
	cs, err := cache.NewCachedStore(base, cfg)
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, cs)
	return cs, nil
}

// Close 释放连接、对象池与缓存；之后 Factory 不可再用
func (f *Factory) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	clear(f.handlers)
	clear(f.conns)
	clear(f.roots)
	return errors.Join(errs...)
}

// MakePathName 构造 backendPath 下名为 child 的子目录的描述符
//
//	Resolve(MakePathName(p, c)) 等价于 Resolve(p).GetDirectory(c)
func MakePathName(backendPath, child string) string {
	switch {
	case strings.HasPrefix(backendPath, PrefixCA),
		strings.HasPrefix(backendPath, PrefixSnapshot),
		strings.HasPrefix(backendPath, PrefixInternal):
		return escapeSegment(child) + "@" + backendPath
	case strings.HasPrefix(backendPath, PrefixRemote),
		strings.HasPrefix(backendPath, PrefixS3):
		return strings.TrimSuffix(backendPath, "/") + "/" + url.PathEscape(child)
	}
	if isNativeDir(backendPath) {
		return filepath.Join(backendPath, child)
	}
	if sub, backend, ok := strings.Cut(backendPath, "@"); ok {
		return path.Join(sub, escapeSegment(child)) + "@" + backend
	}
	return filepath.Join(backendPath, child)
}
