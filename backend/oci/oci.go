// Package oci stores bundles as OCI artifacts in a container registry.
//
// Each bundle is a single-layer OCI 1.1 artifact manifest tagged with the
// dependency hash. The layer carries the tar+gzip bundle produced by the
// archive package.
package oci

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/depsync/archive"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/errors"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// Kind is the registry name of this backend.
const Kind = "oci"

// ArtifactType identifies depsync bundle manifests.
const ArtifactType = "application/vnd.depsync.bundle.v1"

// AnnotationHash records the dependency hash on the manifest.
const AnnotationHash = "dev.depsync.hash"

const bundleFile = "bundle.tar.gz"

// Options configures the backend.
type Options struct {
	// Repository is the registry repository, e.g. "ghcr.io/org/deps".
	Repository string `yaml:"repository"`

	// PlainHTTP talks to the registry over HTTP.
	PlainHTTP bool `yaml:"plainHTTP"`

	// Username and Password enable basic auth against the registry host.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Backend is the OCI registry bundle backend.
type Backend struct {
	opts   Options
	target oras.Target
	fs     billy.Filesystem
}

// Option configures a Backend.
type Option func(*Backend)

// WithTarget uses target instead of a remote repository.
func WithTarget(target oras.Target) Option {
	return func(b *Backend) {
		b.target = target
	}
}

// WithFilesystem sets the filesystem used for bundle files.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(b *Backend) {
		b.fs = fs
	}
}

// New creates a Backend.
func New(opts Options, options ...Option) (*Backend, error) {
	b := &Backend{opts: opts, fs: osfs.New("/")}
	for _, o := range options {
		o(b)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	if b.target == nil {
		repo, err := newRepository(opts)
		if err != nil {
			return nil, err
		}
		b.target = repo
	}
	return b, nil
}

// Factory builds a Backend from raw options for a backend.Registry.
func Factory(options ...Option) backend.Factory {
	return func(raw map[string]any) (backend.Backend, error) {
		var opts Options
		if err := backend.DecodeOptions(raw, &opts); err != nil {
			return nil, err
		}
		return New(opts, options...)
	}
}

// Validate checks the options. A repository is only required when no
// target was injected.
func (b *Backend) Validate() error {
	if b.target == nil && b.opts.Repository == "" {
		return errors.New(errors.CodeInvalidConfig, "oci backend requires 'repository'")
	}
	if b.opts.Password != "" && b.opts.Username == "" {
		return errors.New(errors.CodeInvalidConfig, "oci backend 'password' requires 'username'")
	}
	return nil
}

func newRepository(opts Options) (*remote.Repository, error) {
	repo, err := remote.NewRepository(opts.Repository)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid oci repository",
			map[string]interface{}{"repository": opts.Repository})
	}
	repo.PlainHTTP = opts.PlainHTTP

	client := &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
	}
	if opts.Username != "" {
		client.Credential = auth.StaticCredential(repo.Reference.Registry, auth.Credential{
			Username: opts.Username,
			Password: opts.Password,
		})
	}
	repo.Client = client
	return repo, nil
}

// Push uploads the bundle layer, packs a manifest for it and tags the
// manifest with the hash. An existing tag is reported as
// backend.BundleAlreadyExists.
func (b *Backend) Push(ctx context.Context, call backend.Call) error {
	log := call.Tools.Log()

	if _, err := b.target.Resolve(ctx, call.Hash); err == nil {
		return backend.BundleAlreadyExists(call.Hash, nil)
	} else if !errors.Is(err, errdef.ErrNotFound) {
		return translate(err, call.Hash)
	}

	local := filepath.Join(call.CacheDir, bundleFile)
	layer, err := b.packTo(ctx, call, local)
	if err != nil {
		return err
	}
	defer func() { _ = b.fs.Remove(local) }()

	f, err := b.fs.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	if err := b.target.Push(ctx, layer, f); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return translate(err, call.Hash)
	}

	manifest, err := oras.PackManifest(ctx, b.target, oras.PackManifestVersion1_1, ArtifactType,
		oras.PackManifestOptions{
			Layers:              []ocispec.Descriptor{layer},
			ManifestAnnotations: map[string]string{AnnotationHash: call.Hash},
		})
	if err != nil {
		return translate(err, call.Hash)
	}

	if err := b.target.Tag(ctx, manifest, call.Hash); err != nil {
		return translate(err, call.Hash)
	}

	log.InfoContext(ctx, "pushed bundle",
		"repository", b.opts.Repository,
		"tag", call.Hash,
		"digest", manifest.Digest.String(),
		"size", layer.Size)
	return nil
}

// Pull resolves the hash tag, fetches the bundle layer and unpacks it. The
// layer is verified against its digest once fully read.
func (b *Backend) Pull(ctx context.Context, call backend.Call) error {
	desc, err := b.target.Resolve(ctx, call.Hash)
	if err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			return backend.BundleNotFound(call.Hash, err)
		}
		return translate(err, call.Hash)
	}

	raw, err := content.FetchAll(ctx, b.target, desc)
	if err != nil {
		return translate(err, call.Hash)
	}

	layer, err := bundleLayer(raw)
	if err != nil {
		return err
	}

	rc, err := b.target.Fetch(ctx, layer)
	if err != nil {
		return translate(err, call.Hash)
	}
	defer rc.Close()

	vr := content.NewVerifyReader(rc, layer)
	if err := archive.Unpack(ctx, b.fs, vr, call.ProjectDir); err != nil {
		return fmt.Errorf("failed to unpack bundle: %w", err)
	}
	if _, err := io.Copy(io.Discard, vr); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "bundle layer is corrupt")
	}
	if err := vr.Verify(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "bundle layer failed verification")
	}
	return nil
}

// packTo writes the bundle to dst and returns its layer descriptor.
func (b *Backend) packTo(ctx context.Context, call backend.Call, dst string) (ocispec.Descriptor, error) {
	if err := b.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := b.fs.Create(dst)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to create bundle file: %w", err)
	}

	digester := digest.SHA256.Digester()
	counter := &countingWriter{}
	w := io.MultiWriter(f, digester.Hash(), counter)

	packErr := archive.Pack(ctx, b.fs, call.ProjectDir, "node_modules", w, call.Tools.ReportProgress)
	closeErr := f.Close()
	if packErr != nil {
		_ = b.fs.Remove(dst)
		return ocispec.Descriptor{}, fmt.Errorf("failed to pack bundle: %w", packErr)
	}
	if closeErr != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to write bundle file: %w", closeErr)
	}

	return ocispec.Descriptor{
		MediaType: archive.MediaType,
		Digest:    digester.Digest(),
		Size:      counter.n,
		Annotations: map[string]string{
			ocispec.AnnotationTitle: bundleFile,
		},
	}, nil
}

// bundleLayer decodes a manifest and returns its bundle layer.
func bundleLayer(raw []byte) (ocispec.Descriptor, error) {
	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return ocispec.Descriptor{}, errors.Wrap(err, errors.CodeInvalidInput, "unrecognized manifest format")
	}
	if manifest.ArtifactType != ArtifactType {
		return ocispec.Descriptor{}, errors.NewWithContext(errors.CodeInvalidInput, "manifest is not a depsync bundle",
			map[string]interface{}{"artifactType": manifest.ArtifactType})
	}
	for _, layer := range manifest.Layers {
		if layer.MediaType == archive.MediaType {
			return layer, nil
		}
	}
	return ocispec.Descriptor{}, errors.New(errors.CodeInvalidInput, "manifest has no bundle layer")
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
