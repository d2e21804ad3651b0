package vfs

import (
	"errors"
	"fmt"
)

// ErrorKind 是后端无关的错误分类
// 各后端 (磁盘、内存、远端、CA) 都把自己的错误映射到这里
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindNotFound
	KindTypeConflict
	KindAlreadyExists
	KindNotEmpty
	KindCorruptObject
	KindConnectionFailure
	KindPermissionDenied
	KindReadOnly
)

var kindNames = map[ErrorKind]string{
	KindIO:                "IO",
	KindNotFound:          "NotFound",
	KindTypeConflict:      "TypeConflict",
	KindAlreadyExists:     "AlreadyExists",
	KindNotEmpty:          "NotEmpty",
	KindCorruptObject:     "CorruptObject",
	KindConnectionFailure: "ConnectionFailure",
	KindPermissionDenied:  "PermissionDenied",
	KindReadOnly:          "ReadOnly",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseErrorKind 是 String 的逆操作 (远端协议使用)
func ParseErrorKind(s string) (ErrorKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindIO, false
}

// 每个分类对应一个哨兵错误，方便 errors.Is 判断
var (
	ErrIO                = errors.New("i/o failure")
	ErrNotFound          = errors.New("not found")
	ErrTypeConflict      = errors.New("type conflict")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotEmpty          = errors.New("directory not empty")
	ErrCorruptObject     = errors.New("corrupt object")
	ErrConnectionFailure = errors.New("connection failure")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrReadOnly          = errors.New("read-only handler")
)

var sentinels = map[ErrorKind]error{
	KindIO:                ErrIO,
	KindNotFound:          ErrNotFound,
	KindTypeConflict:      ErrTypeConflict,
	KindAlreadyExists:     ErrAlreadyExists,
	KindNotEmpty:          ErrNotEmpty,
	KindCorruptObject:     ErrCorruptObject,
	KindConnectionFailure: ErrConnectionFailure,
	KindPermissionDenied:  ErrPermissionDenied,
	KindReadOnly:          ErrReadOnly,
}

// Error 是所有 handler 操作返回的错误类型
type Error struct {
	Kind ErrorKind
	// Op 是失败的操作，例如 "createFile"
	Op string
	// Path 是相关的名字或路径 (可为空)
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else {
		msg += ": " + sentinels[e.Kind].Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, vfs.ErrNotFound) 对任何同分类的 *Error 成立
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// NewError 构造一个带分类的错误
func NewError(kind ErrorKind, op, path string, err error) *Error {
	if err == nil {
		err = sentinels[kind]
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf 提取错误分类；非 *Error 的错误一律视为 KindIO
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindIO
}

// IsNotFound 便捷判断
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
