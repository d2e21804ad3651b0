package remote

import (
	"bufio"
	"context"
	"errors"
	"path"
	"strconv"

	"c2fs/pkg/vfs"
)

// Handler 是远端服务器上的一个目录
type Handler struct {
	conn *Conn
	user string
	base string
}

var _ vfs.WritableDirectoryHandler = (*Handler)(nil)

// NewHandler 在 conn 上打开 base 目录，user 为空表示不切换用户
func NewHandler(conn *Conn, user, base string) *Handler {
	return &Handler{conn: conn, user: user, base: path.Clean("/" + base)}
}

func (h *Handler) Conn() *Conn  { return h.conn }
func (h *Handler) Path() string { return h.base }
func (h *Handler) User() string { return h.user }

func (h *Handler) child(name string) string {
	return path.Join(h.base, name)
}

func (h *Handler) readEntry(r *bufio.Reader, out *vfs.Info) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	info, err := parseEntry(trimEOL(line))
	if err != nil {
		return err
	}
	*out = info
	return nil
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func (h *Handler) list(ctx context.Context) ([]vfs.Info, error) {
	var infos []vfs.Info
	err := h.conn.call(ctx, h.user, VerbList, h.base, formatRequest(VerbList, h.base), nil,
		func(r *bufio.Reader, n int64) error {
			infos = make([]vfs.Info, 0, max(n, 0))
			for i := int64(0); i < n; i++ {
				var info vfs.Info
				if err := h.readEntry(r, &info); err != nil {
					return err
				}
				infos = append(infos, info)
			}
			return nil
		})
	return infos, err
}

func (h *Handler) GetFileByName(ctx context.Context, name string) ([]byte, error) {
	return h.GetFile(ctx, vfs.Info{Name: name, Type: vfs.TypeFile})
}

func (h *Handler) GetFile(ctx context.Context, info vfs.Info) ([]byte, error) {
	if err := vfs.CheckName("getFile", info.Name); err != nil {
		return nil, err
	}
	p := h.child(info.Name)
	var data []byte
	err := h.conn.call(ctx, h.user, VerbGet, p, formatRequest(VerbGet, p), nil,
		func(r *bufio.Reader, n int64) error {
			var err error
			data, err = readPayload(r, n)
			return err
		})
	return data, err
}

func (h *Handler) FindItem(ctx context.Context, name string) (vfs.Info, bool, error) {
	return vfs.FindByScan(ctx, h, name)
}

func (h *Handler) ReadContent(ctx context.Context, fn func(vfs.Info) error) error {
	// 先拿到完整列表，回调里可以继续发请求
	infos, err := h.list(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) GetDirectory(ctx context.Context, info vfs.Info) (vfs.DirectoryHandler, error) {
	if err := vfs.CheckName("getDirectory", info.Name); err != nil {
		return nil, err
	}
	found, ok, err := h.FindItem(ctx, info.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, "getDirectory", h.child(info.Name), nil)
	}
	if !found.IsDir() {
		return nil, vfs.NewError(vfs.KindTypeConflict, "getDirectory", h.child(info.Name), errors.New("not a directory"))
	}
	return &Handler{conn: h.conn, user: h.user, base: h.child(info.Name)}, nil
}

func (h *Handler) CreateFile(ctx context.Context, name string, data []byte) (vfs.Info, error) {
	if err := vfs.CheckName("createFile", name); err != nil {
		return vfs.Info{}, err
	}
	p := h.child(name)
	if data == nil {
		data = []byte{}
	}
	line := formatRequest(VerbPut, p) + " " + strconv.Itoa(len(data))
	var info vfs.Info
	err := h.conn.call(ctx, h.user, VerbPut, p, line, data,
		func(r *bufio.Reader, _ int64) error { return h.readEntry(r, &info) })
	return info, err
}

func (h *Handler) remove(ctx context.Context, op, name, kind string) error {
	if err := vfs.CheckName(op, name); err != nil {
		return err
	}
	p := h.child(name)
	return h.conn.call(ctx, h.user, VerbRm, p, formatRequest(VerbRm, p)+" "+kind, nil, nil)
}

func (h *Handler) RemoveFile(ctx context.Context, name string) error {
	return h.remove(ctx, "removeFile", name, "f")
}

func (h *Handler) RemoveDirectory(ctx context.Context, name string) error {
	return h.remove(ctx, "removeDirectory", name, "d")
}

func (h *Handler) CreateDirectory(ctx context.Context, name string) (vfs.Info, error) {
	if err := vfs.CheckName("createDirectory", name); err != nil {
		return vfs.Info{}, err
	}
	p := h.child(name)
	var info vfs.Info
	err := h.conn.call(ctx, h.user, VerbMkdir, p, formatRequest(VerbMkdir, p), nil,
		func(r *bufio.Reader, _ int64) error { return h.readEntry(r, &info) })
	return info, err
}

// CopyFile 两端共享同一个连接时发送一条 CP，由服务端完成复制
func (h *Handler) CopyFile(ctx context.Context, src vfs.DirectoryHandler, srcInfo vfs.Info, destName string) (vfs.Info, bool, error) {
	other, ok := src.(*Handler)
	if !ok || other.conn != h.conn || other.user != h.user {
		return vfs.Info{}, false, nil
	}
	if err := vfs.CheckName("copyFile", destName); err != nil {
		return vfs.Info{}, false, err
	}
	from, to := other.child(srcInfo.Name), h.child(destName)
	var info vfs.Info
	err := h.conn.call(ctx, h.user, VerbCopy, to, formatRequest(VerbCopy, from, to), nil,
		func(r *bufio.Reader, _ int64) error { return h.readEntry(r, &info) })
	if err != nil {
		return vfs.Info{}, false, err
	}
	return info, true, nil
}
