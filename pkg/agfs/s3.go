// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package agfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/uri"
)

// S3Config holds the connection settings for an S3-compatible object store.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// S3 is the object-store backend. Directories are zero-byte marker objects
// whose key ends with "/", so an empty directory survives even though object
// stores have no native folders. Object writes are atomic per key, which
// gives the same node-granularity guarantee as the local backend.
type S3 struct {
	client *minio.Client
	bucket string
}

// NewS3 connects to the object store and ensures the bucket exists.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.DependencyError(err, "check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.DependencyError(err, "create bucket %s", cfg.Bucket)
		}
	}
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3) key(u uri.URI) string     { return u.Path() }
func (s *S3) dirKey(u uri.URI) string  { return u.Path() + "/" }
func (s *S3) isRootKey(u uri.URI) bool { return u.Path() == "" }

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}

func (s *S3) dirExists(ctx context.Context, u uri.URI) (bool, error) {
	if s.isRootKey(u) {
		return true, nil
	}
	if _, err := s.client.StatObject(ctx, s.bucket, s.dirKey(u), minio.StatObjectOptions{}); err == nil {
		return true, nil
	} else if !isNoSuchKey(err) {
		return false, errors.DependencyError(err, "stat %s", u)
	}
	// No marker. A directory still exists if anything lives under it, which
	// happens for trees imported by other tools.
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.dirKey(u), MaxKeys: 1}) {
		if obj.Err != nil {
			return false, errors.DependencyError(obj.Err, "list %s", u)
		}
		return true, nil
	}
	return false, nil
}

func (s *S3) Read(ctx context.Context, u uri.URI) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(u), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.DependencyError(err, "read %s", u)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			if ok, dirErr := s.dirExists(ctx, u); dirErr == nil && ok {
				return nil, errors.InvalidArgument("uri %s is a directory", u)
			}
			return nil, errors.NotFound("uri %s does not exist", u)
		}
		return nil, errors.DependencyError(err, "read %s", u)
	}
	return data, nil
}

func (s *S3) Write(ctx context.Context, u uri.URI, data []byte, opts WriteOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	parent := u.Parent()
	if ok, err := s.dirExists(ctx, parent); err != nil {
		return err
	} else if !ok {
		return errors.NotFound("parent of %s does not exist", u)
	}
	if ok, err := s.dirExists(ctx, u); err != nil {
		return err
	} else if ok {
		return errors.InvalidArgument("uri %s is a directory", u)
	}
	if opts.CreateOnly {
		if _, err := s.client.StatObject(ctx, s.bucket, s.key(u), minio.StatObjectOptions{}); err == nil {
			return errors.AlreadyExists("uri %s already exists", u)
		} else if !isNoSuchKey(err) {
			return errors.DependencyError(err, "stat %s", u)
		}
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(u), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return errors.DependencyError(err, "write %s", u)
	}
	return nil
}

// Append emulates appending by read-concat-write. Object stores have no
// native append; session logs on this backend pay a full rewrite per event.
func (s *S3) Append(ctx context.Context, u uri.URI, data []byte) error {
	existing, err := s.Read(ctx, u)
	if err != nil {
		if !errors.IsNotFound(err) {
			return err
		}
		existing = nil
	}
	return s.Write(ctx, u, append(existing, data...), WriteOptions{})
}

func (s *S3) Mkdir(ctx context.Context, u uri.URI) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	// Marker objects for every missing ancestor, top down.
	segs := u.Segments()
	cur := uri.Root
	for _, seg := range segs {
		cur = cur.MustJoin(seg)
		if ok, err := s.dirExists(ctx, cur); err != nil {
			return err
		} else if ok {
			continue
		}
		_, err := s.client.PutObject(ctx, s.bucket, s.dirKey(cur), bytes.NewReader(nil), 0, minio.PutObjectOptions{})
		if err != nil {
			return errors.DependencyError(err, "mkdir %s", cur)
		}
	}
	return nil
}

func (s *S3) Stat(ctx context.Context, u uri.URI) (Stat, error) {
	if err := ctxErr(ctx); err != nil {
		return Stat{}, err
	}
	if s.isRootKey(u) {
		return Stat{Exists: true, IsDir: true}, nil
	}
	info, err := s.client.StatObject(ctx, s.bucket, s.key(u), minio.StatObjectOptions{})
	if err == nil {
		return Stat{Exists: true, Size: info.Size, MTime: info.LastModified}, nil
	}
	if !isNoSuchKey(err) {
		return Stat{}, errors.DependencyError(err, "stat %s", u)
	}
	ok, err := s.dirExists(ctx, u)
	if err != nil {
		return Stat{}, err
	}
	if ok {
		return Stat{Exists: true, IsDir: true}, nil
	}
	return Stat{}, nil
}

func (s *S3) List(ctx context.Context, u uri.URI, opts ListOptions) ([]Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	st, err := s.Stat(ctx, u)
	if err != nil {
		return nil, err
	}
	if !st.Exists {
		return nil, errors.NotFound("uri %s does not exist", u)
	}
	if !st.IsDir {
		return nil, errors.InvalidArgument("uri %s is not a directory", u)
	}

	var entries []Entry
	if err := s.collect(ctx, u, opts, &entries); err != nil {
		return nil, err
	}
	sortEntries(entries)
	return applyNodeLimit(entries, opts.NodeLimit), nil
}

func (s *S3) collect(ctx context.Context, dir uri.URI, opts ListOptions, out *[]Entry) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	prefix := ""
	if !s.isRootKey(dir) {
		prefix = s.dirKey(dir)
	}
	seen := make(map[string]bool)
	var subdirs []uri.URI
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return errors.DependencyError(obj.Err, "list %s", dir)
		}
		if obj.Key == prefix {
			continue // the directory's own marker
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		isDir := strings.HasSuffix(name, "/")
		name = strings.TrimSuffix(name, "/")
		if seen[name] {
			continue // marker object and common prefix both surface for a dir
		}
		seen[name] = true
		if !opts.IncludeHidden && uri.IsHiddenName(name) {
			continue
		}
		child, err := dir.Join(name)
		if err != nil {
			continue
		}
		e := Entry{URI: child, IsDir: isDir, Size: obj.Size, MTime: obj.LastModified}
		if isDir {
			e.Size = 0
			if data, err := s.Read(ctx, child.MustJoin(uri.AbstractName)); err == nil {
				e.Abstract = string(data)
			}
			subdirs = append(subdirs, child)
		}
		*out = append(*out, e)
	}
	if opts.Recursive {
		for _, sub := range subdirs {
			if err := s.collect(ctx, sub, opts, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, u uri.URI, opts DeleteOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	st, err := s.Stat(ctx, u)
	if err != nil {
		return err
	}
	if !st.Exists {
		return errors.NotFound("uri %s does not exist", u)
	}
	if !st.IsDir {
		if err := s.client.RemoveObject(ctx, s.bucket, s.key(u), minio.RemoveObjectOptions{}); err != nil {
			return errors.DependencyError(err, "delete %s", u)
		}
		return nil
	}

	keys, err := s.keysUnder(ctx, u)
	if err != nil {
		return err
	}
	if !opts.Recursive && len(keys) > 0 {
		return errors.InvalidArgument("directory %s is not empty (set recursive to cascade)", u)
	}
	keys = append(keys, s.dirKey(u))
	for _, k := range keys {
		if err := s.client.RemoveObject(ctx, s.bucket, k, minio.RemoveObjectOptions{}); err != nil {
			return errors.DependencyError(err, "delete %s", u)
		}
	}
	return nil
}

// keysUnder lists every object key strictly below u, deepest first so that
// deletion never orphans a marker before its contents.
func (s *S3) keysUnder(ctx context.Context, u uri.URI) ([]string, error) {
	var keys []string
	prefix := s.dirKey(u)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.DependencyError(obj.Err, "list %s", u)
		}
		if obj.Key == prefix {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys, nil
}

// Move is copy-then-delete. A ".move_pending" marker under the destination
// parent names both endpoints so a crashed move can be rolled back by reset.
func (s *S3) Move(ctx context.Context, src, dst uri.URI) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	srcStat, err := s.Stat(ctx, src)
	if err != nil {
		return err
	}
	if !srcStat.Exists {
		return errors.NotFound("uri %s does not exist", src)
	}
	if dstStat, err := s.Stat(ctx, dst); err != nil {
		return err
	} else if dstStat.Exists {
		return errors.AlreadyExists("uri %s already exists", dst)
	}
	parent := dst.Parent()
	if ok, err := s.dirExists(ctx, parent); err != nil {
		return err
	} else if !ok {
		return errors.NotFound("parent of %s does not exist", dst)
	}

	marker := parent.MustJoin(MovePendingName)
	payload := []byte(fmt.Sprintf("%s\n%s\n", src, dst))
	if err := s.Write(ctx, marker, payload, WriteOptions{}); err != nil {
		return err
	}

	if srcStat.IsDir {
		err = s.moveTree(ctx, src, dst)
	} else {
		err = s.moveObject(ctx, s.key(src), s.key(dst))
	}
	if err != nil {
		return err
	}
	return s.Delete(ctx, marker, DeleteOptions{})
}

func (s *S3) moveObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey})
	if err != nil {
		return errors.DependencyError(err, "copy %s", srcKey)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, srcKey, minio.RemoveObjectOptions{}); err != nil {
		return errors.DependencyError(err, "remove %s", srcKey)
	}
	return nil
}

func (s *S3) moveTree(ctx context.Context, src, dst uri.URI) error {
	keys, err := s.keysUnder(ctx, src)
	if err != nil {
		return err
	}
	srcPrefix, dstPrefix := s.dirKey(src), s.dirKey(dst)
	// Copy top down so markers land before contents, delete bottom up.
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) < len(keys[j]) })
	if _, err := s.client.PutObject(ctx, s.bucket, dstPrefix, bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		return errors.DependencyError(err, "mkdir %s", dst)
	}
	for _, k := range keys {
		dstKey := dstPrefix + strings.TrimPrefix(k, srcPrefix)
		if strings.HasSuffix(k, "/") {
			if _, err := s.client.PutObject(ctx, s.bucket, dstKey, bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
				return errors.DependencyError(err, "mkdir %s", dstKey)
			}
			continue
		}
		if _, err := s.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
			minio.CopySrcOptions{Bucket: s.bucket, Object: k}); err != nil {
			return errors.DependencyError(err, "copy %s", k)
		}
	}
	for i := len(keys) - 1; i >= 0; i-- {
		if err := s.client.RemoveObject(ctx, s.bucket, keys[i], minio.RemoveObjectOptions{}); err != nil {
			return errors.DependencyError(err, "remove %s", keys[i])
		}
	}
	if err := s.client.RemoveObject(ctx, s.bucket, srcPrefix, minio.RemoveObjectOptions{}); err != nil {
		return errors.DependencyError(err, "remove %s", srcPrefix)
	}
	return nil
}

var _ FS = (*S3)(nil)
