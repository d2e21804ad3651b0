// Package s3 把一个桶 (或桶内前缀) 当作目录树
//
// 目录就是键前缀，每个目录有一个以 "/" 结尾的空标记对象；
// 文件就是普通对象。
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"c2fs/pkg/vfs"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ContentIDPrefix 是 S3 条目 ContentID 的前缀
const ContentIDPrefix = "etag:"

// Config 用于初始化 Client
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// MinIO 必须强制使用 Path Style
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

// Client 包装 S3 客户端，可被多个 Handler 共享
type Client struct {
	api *s3.Client
}

// NewClient 初始化 S3 客户端 (AWS SDK v2)
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Client{api: api}, nil
}

// Handler 是桶内的一个目录
type Handler struct {
	client *Client
	bucket string
	prefix string // "" 或以 "/" 结尾
}

var _ vfs.WritableDirectoryHandler = (*Handler)(nil)

// NewHandler 打开 bucket 下的 prefix 目录，桶不存在时尝试创建
func NewHandler(ctx context.Context, client *Client, bucket, prefix string) (*Handler, error) {
	_, err := client.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if _, cerr := client.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); cerr != nil {
			// 并发创建或权限问题，交给后续操作暴露
			slog.Warn("failed to ensure bucket exists", slog.String("bucket", bucket), slog.Any("err", cerr))
		}
	}

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Handler{client: client, bucket: bucket, prefix: prefix}, nil
}

func (h *Handler) Bucket() string { return h.bucket }
func (h *Handler) Prefix() string { return h.prefix }

func (h *Handler) key(name string) string    { return h.prefix + name }
func (h *Handler) dirKey(name string) string { return h.prefix + name + "/" }

// mapError 把 AWS 的错误映射到 vfs 分类
func mapError(op, key string, err error) error {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return vfs.NewError(vfs.KindNotFound, op, key, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden":
			return vfs.NewError(vfs.KindPermissionDenied, op, key, err)
		case "NotFound", "NoSuchKey":
			return vfs.NewError(vfs.KindNotFound, op, key, err)
		}
	}
	return vfs.NewError(vfs.KindIO, op, key, err)
}

func etag(s *string) string {
	if s == nil || *s == "" {
		return ""
	}
	return ContentIDPrefix + strings.Trim(*s, `"`)
}

func (h *Handler) ReadContent(ctx context.Context, fn func(vfs.Info) error) error {
	var infos []vfs.Info
	p := s3.NewListObjectsV2Paginator(h.client.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(h.bucket),
		Prefix:    aws.String(h.prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return mapError("readContent", h.prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), h.prefix), "/")
			if name != "" {
				infos = append(infos, vfs.Info{Name: name, Type: vfs.TypeDirectory})
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), h.prefix)
			if name == "" {
				continue // 本目录的标记对象
			}
			infos = append(infos, vfs.Info{
				Name:      name,
				Type:      vfs.TypeFile,
				Size:      aws.ToInt64(obj.Size),
				HasSize:   true,
				ContentID: etag(obj.ETag),
			})
		}
	}

	vfs.SortByName(infos)
	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) FindItem(ctx context.Context, name string) (vfs.Info, bool, error) {
	if !vfs.ValidName(name) {
		return vfs.Info{}, false, nil
	}

	head, err := h.client.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(name)),
	})
	if err == nil {
		return vfs.Info{
			Name:      name,
			Type:      vfs.TypeFile,
			Size:      aws.ToInt64(head.ContentLength),
			HasSize:   true,
			ContentID: etag(head.ETag),
		}, true, nil
	}
	if !vfs.IsNotFound(mapError("findItem", h.key(name), err)) {
		return vfs.Info{}, false, mapError("findItem", h.key(name), err)
	}

	// 不是文件，看看是不是目录 (标记对象或任意子键)
	resp, err := h.client.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(h.bucket),
		Prefix:  aws.String(h.dirKey(name)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return vfs.Info{}, false, mapError("findItem", h.dirKey(name), err)
	}
	if aws.ToInt32(resp.KeyCount) > 0 {
		return vfs.Info{Name: name, Type: vfs.TypeDirectory}, true, nil
	}
	return vfs.Info{}, false, nil
}

func (h *Handler) GetFileByName(ctx context.Context, name string) ([]byte, error) {
	return vfs.ReadFileByName(ctx, h, name)
}

func (h *Handler) GetFile(ctx context.Context, info vfs.Info) ([]byte, error) {
	if err := vfs.CheckName("getFile", info.Name); err != nil {
		return nil, err
	}
	resp, err := h.client.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(info.Name)),
	})
	if err != nil {
		return nil, mapError("getFile", h.key(info.Name), err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "getFile", h.key(info.Name), err)
	}
	return data, nil
}

func (h *Handler) GetDirectory(ctx context.Context, info vfs.Info) (vfs.DirectoryHandler, error) {
	found, ok, err := h.FindItem(ctx, info.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, "getDirectory", h.dirKey(info.Name), nil)
	}
	if !found.IsDir() {
		return nil, vfs.NewError(vfs.KindTypeConflict, "getDirectory", h.key(info.Name), errors.New("not a directory"))
	}
	return &Handler{client: h.client, bucket: h.bucket, prefix: h.dirKey(info.Name)}, nil
}

// expectNotDir 在 name 已经是目录时返回 KindAlreadyExists
func (h *Handler) expectNotDir(ctx context.Context, op, name string) error {
	if err := vfs.CheckName(op, name); err != nil {
		return err
	}
	found, ok, err := h.FindItem(ctx, name)
	if err != nil {
		return err
	}
	if ok && found.IsDir() {
		return vfs.NewError(vfs.KindAlreadyExists, op, h.key(name), errors.New("is a directory"))
	}
	return nil
}

func (h *Handler) CreateFile(ctx context.Context, name string, data []byte) (vfs.Info, error) {
	if err := h.expectNotDir(ctx, "createFile", name); err != nil {
		return vfs.Info{}, err
	}
	resp, err := h.client.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return vfs.Info{}, mapError("createFile", h.key(name), err)
	}
	return vfs.Info{
		Name:      name,
		Type:      vfs.TypeFile,
		Size:      int64(len(data)),
		HasSize:   true,
		ContentID: etag(resp.ETag),
	}, nil
}

func (h *Handler) deleteKey(ctx context.Context, op, key string) error {
	_, err := h.client.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError(op, key, err)
	}
	return nil
}

func (h *Handler) RemoveFile(ctx context.Context, name string) error {
	if err := vfs.CheckName("removeFile", name); err != nil {
		return err
	}
	found, ok, err := h.FindItem(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return vfs.NewError(vfs.KindNotFound, "removeFile", h.key(name), nil)
	}
	if found.IsDir() {
		return vfs.NewError(vfs.KindTypeConflict, "removeFile", h.key(name), errors.New("is a directory"))
	}
	return h.deleteKey(ctx, "removeFile", h.key(name))
}

func (h *Handler) CreateDirectory(ctx context.Context, name string) (vfs.Info, error) {
	if err := vfs.CheckName("createDirectory", name); err != nil {
		return vfs.Info{}, err
	}
	found, ok, err := h.FindItem(ctx, name)
	if err != nil {
		return vfs.Info{}, err
	}
	if ok {
		if found.IsDir() {
			return found, nil
		}
		return vfs.Info{}, vfs.NewError(vfs.KindAlreadyExists, "createDirectory", h.key(name), errors.New("is a file"))
	}
	_, err = h.client.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.dirKey(name)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return vfs.Info{}, mapError("createDirectory", h.dirKey(name), err)
	}
	return vfs.Info{Name: name, Type: vfs.TypeDirectory}, nil
}

func (h *Handler) RemoveDirectory(ctx context.Context, name string) error {
	if err := vfs.CheckName("removeDirectory", name); err != nil {
		return err
	}
	found, ok, err := h.FindItem(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return vfs.NewError(vfs.KindNotFound, "removeDirectory", h.dirKey(name), nil)
	}
	if !found.IsDir() {
		return vfs.NewError(vfs.KindTypeConflict, "removeDirectory", h.key(name), errors.New("not a directory"))
	}

	// 除了标记对象之外还有别的键就是非空
	resp, err := h.client.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(h.bucket),
		Prefix:  aws.String(h.dirKey(name)),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return mapError("removeDirectory", h.dirKey(name), err)
	}
	for _, obj := range resp.Contents {
		if aws.ToString(obj.Key) != h.dirKey(name) {
			return vfs.NewError(vfs.KindNotEmpty, "removeDirectory", h.dirKey(name), nil)
		}
	}
	return h.deleteKey(ctx, "removeDirectory", h.dirKey(name))
}

// CopyFile 两端使用同一个 Client 时用 CopyObject 在服务端复制
func (h *Handler) CopyFile(ctx context.Context, src vfs.DirectoryHandler, srcInfo vfs.Info, destName string) (vfs.Info, bool, error) {
	other, ok := src.(*Handler)
	if !ok || other.client != h.client {
		return vfs.Info{}, false, nil
	}
	if err := h.expectNotDir(ctx, "copyFile", destName); err != nil {
		return vfs.Info{}, false, err
	}

	source := other.bucket + "/" + other.key(srcInfo.Name)
	resp, err := h.client.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(h.bucket),
		Key:        aws.String(h.key(destName)),
		CopySource: aws.String(url.PathEscape(source)),
	})
	if err != nil {
		return vfs.Info{}, false, mapError("copyFile", other.key(srcInfo.Name), err)
	}

	info := vfs.Info{Name: destName, Type: vfs.TypeFile, Size: srcInfo.Size, HasSize: srcInfo.HasSize}
	if resp.CopyObjectResult != nil {
		info.ContentID = etag(resp.CopyObjectResult.ETag)
	}
	return info, true, nil
}
