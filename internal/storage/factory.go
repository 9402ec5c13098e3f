package storage

import (
	"context"
	"strings"
)

// New creates an ObjectStorage for cfg and makes sure its bucket exists.
func New(ctx context.Context, cfg *Config) (ObjectStorage, error) {
	if cfg.Type == "" {
		cfg.Type = detectType(cfg.Endpoint)
	}

	s, err := NewS3Storage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CreateBucket {
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// detectType guesses the provider from the endpoint host.
func detectType(endpoint string) Type {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "":
		return TypeS3
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return TypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return TypeS3
	default:
		return TypeS3Compatible
	}
}
