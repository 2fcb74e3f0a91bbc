// Package s3 stores bundles as objects in an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/depsync/archive"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Kind is the registry name of this backend.
const Kind = "s3"

const bundleFile = "bundle.tar.gz"

// Options configures the backend.
type Options struct {
	// Bucket is the bucket name (required).
	Bucket string `yaml:"bucket"`

	// Endpoint is the S3 endpoint host[:port].
	Endpoint string `yaml:"endpoint"`

	// Region is passed to the client when set.
	Region string `yaml:"region"`

	// AccessKey defaults to AWS_ACCESS_KEY_ID.
	AccessKey string `yaml:"accessKey"`

	// SecretKey defaults to AWS_SECRET_ACCESS_KEY.
	SecretKey string `yaml:"secretKey"`

	// UseSSL enables HTTPS.
	UseSSL bool `yaml:"useSSL"`

	// Prefix namespaces all object keys.
	Prefix string `yaml:"prefix"`
}

// DefaultOptions returns options with defaults applied.
func DefaultOptions() Options {
	return Options{
		Endpoint: "s3.amazonaws.com",
		UseSSL:   true,
	}
}

// Backend is the S3 bundle backend.
type Backend struct {
	opts  Options
	store objectStore
	fs    billy.Filesystem
}

// Option configures a Backend.
type Option func(*Backend)

// WithClient uses an existing minio client instead of building one from
// the options.
func WithClient(client *minio.Client) Option {
	return func(b *Backend) {
		b.store = &minioStore{client: client, bucket: b.opts.Bucket}
	}
}

// WithFilesystem sets the filesystem for local bundle files.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(b *Backend) {
		b.fs = fs
	}
}

// New creates a Backend.
func New(opts Options, options ...Option) (*Backend, error) {
	if opts.AccessKey == "" {
		opts.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if opts.SecretKey == "" {
		opts.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts.Prefix = normalizePrefix(opts.Prefix)

	b := &Backend{opts: opts, fs: osfs.New("/")}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	for _, o := range options {
		o(b)
	}

	if b.store == nil {
		client, err := minio.New(opts.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
			Secure: opts.UseSSL,
			Region: opts.Region,
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to create s3 client")
		}
		b.store = &minioStore{client: client, bucket: opts.Bucket}
	}

	return b, nil
}

// Factory builds a Backend from raw options for a backend.Registry.
func Factory(options ...Option) backend.Factory {
	return func(raw map[string]any) (backend.Backend, error) {
		opts := DefaultOptions()
		if err := backend.DecodeOptions(raw, &opts); err != nil {
			return nil, err
		}
		return New(opts, options...)
	}
}

// Validate checks the options.
func (b *Backend) Validate() error {
	if b.opts.Bucket == "" {
		return errors.New(errors.CodeInvalidConfig, "s3 backend requires 'bucket'")
	}
	if b.opts.Endpoint == "" {
		return errors.New(errors.CodeInvalidConfig, "s3 backend requires 'endpoint'")
	}
	return nil
}

// key returns the object key for hash.
func (b *Backend) key(hash string) string {
	name := hash + ".tar.gz"
	if b.opts.Prefix == "" {
		return name
	}
	return b.opts.Prefix + "/" + name
}

// Push uploads the bundle unless the object already exists.
func (b *Backend) Push(ctx context.Context, call backend.Call) error {
	key := b.key(call.Hash)

	exists, err := b.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return backend.BundleAlreadyExists(call.Hash, nil)
	}

	local := filepath.Join(call.CacheDir, bundleFile)
	if err := b.packTo(ctx, call, local); err != nil {
		return err
	}
	defer func() { _ = b.fs.Remove(local) }()

	f, err := b.fs.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	info, err := b.fs.Stat(local)
	if err != nil {
		return fmt.Errorf("failed to stat bundle: %w", err)
	}

	if err := b.store.Put(ctx, key, f, info.Size()); err != nil {
		return err
	}

	call.Tools.Log().InfoContext(ctx, "uploaded bundle", "bucket", b.opts.Bucket, "key", key, "size", info.Size())
	return nil
}

// Pull downloads and unpacks the bundle.
func (b *Backend) Pull(ctx context.Context, call backend.Call) error {
	rc, err := b.store.Get(ctx, b.key(call.Hash))
	if err != nil {
		if errors.GetCode(err) == errors.CodeNotFound {
			return backend.BundleNotFound(call.Hash, err)
		}
		return err
	}
	defer rc.Close()

	if err := archive.Unpack(ctx, b.fs, rc, call.ProjectDir); err != nil {
		return fmt.Errorf("failed to unpack bundle: %w", err)
	}
	return nil
}

func (b *Backend) packTo(ctx context.Context, call backend.Call, dst string) error {
	if err := b.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := b.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create bundle file: %w", err)
	}

	packErr := archive.Pack(ctx, b.fs, call.ProjectDir, "node_modules", f, call.Tools.ReportProgress)
	closeErr := f.Close()
	if packErr != nil {
		return fmt.Errorf("failed to pack bundle: %w", packErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to write bundle file: %w", closeErr)
	}
	return nil
}

// normalizePrefix converts backslashes, cleans the path and trims slashes.
// "." and "" both mean no prefix.
func normalizePrefix(prefix string) string {
	if prefix == "" || prefix == "." {
		return ""
	}
	prefix = path.Clean(strings.ReplaceAll(prefix, "\\", "/"))
	prefix = strings.Trim(prefix, "/")
	if prefix == "." {
		return ""
	}
	return prefix
}

// objectStore is the subset of object storage the backend needs.
type objectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
