package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	logx "cpbot/pkg/logx"
)

// gcsStore keeps one object per key: <prefix>/<scope>/<key>.json.
type gcsStore struct {
	client *gcs.Client
	bucket string
	prefix string
	log    logx.Logger
}

func openGCS(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("storage.bucket is required for gcs driver")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &gcsStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
	}, nil
}

func (s *gcsStore) object(scope Scope, key string) string {
	return path.Join(s.prefix, string(scope), key+".json")
}

func (s *gcsStore) retryOpts(ctx context.Context, op, key string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(500 * time.Millisecond),
		retry.MaxDelay(10 * time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.log.Info("retrying storage operation", logx.String("op", op), logx.String("key", key), logx.Int("attempt", int(n)), logx.Err(err))
		}),
	}
}

func (s *gcsStore) Get(ctx context.Context, scope Scope, key string) ([]byte, error) {
	if err := checkKey(scope, key); err != nil {
		return nil, err
	}
	name := s.object(scope, key)
	var (
		data    []byte
		missing bool
	)
	err := retry.Do(func() error {
		r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
		if err != nil {
			if errors.Is(err, gcs.ErrObjectNotExist) {
				missing = true
				return retry.Unrecoverable(err)
			}
			return fmt.Errorf("open reader: %w", err)
		}
		defer r.Close()
		data, err = io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read object: %w", err)
		}
		return nil
	}, s.retryOpts(ctx, "get", name)...)
	if missing {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *gcsStore) Put(ctx context.Context, scope Scope, key string, value []byte) error {
	if err := checkKey(scope, key); err != nil {
		return err
	}
	name := s.object(scope, key)
	return retry.Do(func() error {
		w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
		w.ContentType = "application/json"
		if _, err := w.Write(value); err != nil {
			_ = w.Close()
			return fmt.Errorf("write object: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close writer: %w", err)
		}
		return nil
	}, s.retryOpts(ctx, "put", name)...)
}

func (s *gcsStore) Delete(ctx context.Context, scope Scope, key string) error {
	if err := checkKey(scope, key); err != nil {
		return err
	}
	name := s.object(scope, key)
	return retry.Do(func() error {
		err := s.client.Bucket(s.bucket).Object(name).Delete(ctx)
		if err == nil || errors.Is(err, gcs.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("delete object: %w", err)
	}, s.retryOpts(ctx, "delete", name)...)
}

func (s *gcsStore) Keys(ctx context.Context, scope Scope) ([]string, error) {
	dir := path.Join(s.prefix, string(scope)) + "/"
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: dir})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		name := strings.TrimPrefix(attrs.Name, dir)
		if k, ok := strings.CutSuffix(name, ".json"); ok && k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *gcsStore) Close() error { return s.client.Close() }
