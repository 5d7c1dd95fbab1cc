package syncjob

import (
	"context"
	"fmt"
)

// TargetConfig selects and configures the external store.
type TargetConfig struct {
	// Kind is "mongo", "dynamodb", "memory" or "none". Empty picks mongo when
	// MongoURI is set and none otherwise.
	Kind        string
	MongoURI    string
	Database    string
	TablePrefix string
	Region      string
}

// ResolvedKind applies the empty-Kind default.
func (c TargetConfig) ResolvedKind() string {
	if c.Kind != "" {
		return c.Kind
	}
	if c.MongoURI != "" {
		return "mongo"
	}
	return "none"
}

// NewTarget は cfg に従って Target を生成する。"none" のときは ErrDisabled を返す
func NewTarget(ctx context.Context, cfg TargetConfig) (Target, error) {
	switch kind := cfg.ResolvedKind(); kind {
	case "mongo":
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("sync target mongo: MONGODB_URI is empty")
		}
		return NewMongoTarget(ctx, cfg.MongoURI, cfg.Database)
	case "dynamodb":
		return NewDynamoTarget(ctx, cfg.Region, cfg.TablePrefix)
	case "memory":
		return NewMemoryTarget(), nil
	case "none":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown sync target %q", kind)
	}
}
