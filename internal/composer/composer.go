// Package composer drives captures on behalf of a user: it asks the capture
// service for an artifact, keeps a copy, optionally shares it and records the
// result in the history.
package composer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"
	"webshot/internal/capture"
	"webshot/internal/history"
	"webshot/internal/storage"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type Composer struct {
	Capturer capture.Capturer
	// Storage receives the downloaded artifact.
	Storage storage.Storage
	// Share is optional. When set, the artifact is also published there.
	Share   storage.Storage
	History history.Store
	Logger  *slog.Logger
	Now     func() time.Time
}

type Result struct {
	Entry     history.Entry     `json:"entry"`
	Artifact  *capture.Artifact `json:"-"`
	SharedURL string            `json:"sharedURL,omitempty"`
}

// Compose runs one capture. Nothing is stored and the history is untouched
// unless every step succeeds.
func (c *Composer) Compose(ctx context.Context, request capture.Request) (*Result, error) {
	artifact, err := c.Capturer.Capture(ctx, request)
	if err != nil {
		return nil, err
	}

	now := c.now()
	key := ArtifactKey(request.URL, now, artifact.Extension())

	var savedRef, sharedURL string
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ref, err := c.Storage.Put(egCtx, key, artifact.Bytes)
		if err != nil {
			return xerrors.Errorf("failed to save artifact: %w", err)
		}
		savedRef = ref
		return nil
	})
	if c.Share != nil {
		eg.Go(func() error {
			ref, err := c.Share.Put(egCtx, key, artifact.Bytes)
			if err != nil {
				return xerrors.Errorf("failed to share artifact: %w", err)
			}
			sharedURL = ref
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		c.discard(ctx, c.Storage, savedRef)
		c.discard(ctx, c.Share, sharedURL)
		return nil, err
	}

	entry := history.NewEntry(request.URL, savedRef, now)
	evicted, err := c.History.Add(ctx, entry)
	if err != nil {
		c.discard(ctx, c.Storage, savedRef)
		c.discard(ctx, c.Share, sharedURL)
		return nil, xerrors.Errorf("failed to record history: %w", err)
	}
	for _, e := range evicted {
		c.discard(ctx, c.Storage, e.ArtifactRef)
	}

	c.logger().Info("capture composed", slog.String("url", request.URL), slog.String("artifactRef", savedRef))

	return &Result{
		Entry:     entry,
		Artifact:  artifact,
		SharedURL: sharedURL,
	}, nil
}

// ArtifactKey is unique per URL and instant, so two captures never share a
// file and evicting one entry cannot remove another entry's artifact.
func ArtifactKey(url string, at time.Time, extension string) string {
	h := sha256.New()
	h.Write([]byte(url))
	urlHash := fmt.Sprintf("%x", h.Sum(nil))[:16]

	at = at.UTC()
	return fmt.Sprintf("capture/%s/%s%09d.%s", urlHash, at.Format("20060102150405"), at.Nanosecond(), extension)
}

func (c *Composer) discard(ctx context.Context, s storage.Storage, ref string) {
	if s == nil || ref == "" {
		return
	}
	if err := s.Delete(context.WithoutCancel(ctx), ref); err != nil {
		c.logger().Warn(fmt.Sprintf("failed to delete artifact %s: %s", ref, err))
	}
}

func (c *Composer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Composer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
