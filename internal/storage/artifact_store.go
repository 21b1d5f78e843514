package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore keeps exported files grouped by deck id.
type ArtifactStore interface {
	Put(ctx context.Context, deckID, name, contentType string, data []byte) (string, error)
	Get(ctx context.Context, deckID, name string) ([]byte, error)
	List(ctx context.Context, deckID string) ([]string, error)
}

func objectKey(deckID, name string) (string, error) {
	deckID = strings.Trim(strings.TrimSpace(deckID), "/")
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if deckID == "" {
		return "", fmt.Errorf("deck id is required")
	}
	if name == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	if strings.Contains(deckID, "..") || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid artifact path %s/%s", deckID, name)
	}
	return deckID + "/" + name, nil
}

// ── Filesystem ────────────────────────────────────────────

// FSArtifactStore writes artifacts under a root directory.
type FSArtifactStore struct {
	root string
}

func NewFSArtifactStore(root string) (*FSArtifactStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FSArtifactStore{root: root}, nil
}

func (s *FSArtifactStore) Put(_ context.Context, deckID, name, _ string, data []byte) (string, error) {
	key, err := objectKey(deckID, name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

func (s *FSArtifactStore) Get(_ context.Context, deckID, name string) ([]byte, error) {
	key, err := objectKey(deckID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrArtifactNotFound
	}
	return data, err
}

func (s *FSArtifactStore) List(_ context.Context, deckID string) ([]string, error) {
	dir := filepath.Join(s.root, strings.Trim(deckID, "/"))
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// ── S3-compatible ─────────────────────────────────────────

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3ArtifactStore writes artifacts to an S3-compatible bucket.
type S3ArtifactStore struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

func NewS3ArtifactStore(cfg S3Config) (*S3ArtifactStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3ArtifactStore{client: client, bucket: bucket, region: region}, nil
}

func (s *S3ArtifactStore) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Put uploads data and returns an s3:// location.
func (s *S3ArtifactStore) Put(ctx context.Context, deckID, name, contentType string, data []byte) (string, error) {
	key, err := objectKey(deckID, name)
	if err != nil {
		return "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *S3ArtifactStore) Get(ctx context.Context, deckID, name string) ([]byte, error) {
	key, err := objectKey(deckID, name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, ErrArtifactNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *S3ArtifactStore) List(ctx context.Context, deckID string) ([]string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	prefix := strings.Trim(deckID, "/") + "/"
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key != "" {
			names = append(names, strings.TrimPrefix(obj.Key, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}
