package backing

import (
	"context"
	"fmt"

	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
)

// NewFromSettings builds the record store selected by the backing settings.
func NewFromSettings(ctx context.Context) (RecordStore, error) {
	cfg := st.Backing
	st.Logger.Info().Str("backend", cfg.Backend).Msg("opening backing store")
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "local":
		return NewLocalStore(cfg.Local.Path)
	case "s3":
		if cfg.S3.AccessKey == "" {
			return NewS3StoreIAM(ctx, cfg.S3.Endpoint, cfg.S3.Secure, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix)
		}
		return NewS3Store(ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Secure, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix)
	case "azure":
		return NewAzureStore(ctx, cfg.Azure.Endpoint, cfg.Azure.Container, cfg.Azure.StorageAccount, cfg.Azure.AccessKey, cfg.Azure.Prefix)
	case "sql":
		s, err := NewSQLStore(cfg.SQL.Driver, cfg.SQL.DSN, SQLTable{
			Table:         cfg.SQL.Table,
			IDColumn:      cfg.SQL.IDColumn,
			PayloadColumn: cfg.SQL.PayloadColumn,
		})
		if err != nil {
			return nil, err
		}
		if err := s.CreateTable(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare record table: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backing store '%s'", cfg.Backend)
	}
}
