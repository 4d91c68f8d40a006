package backing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/prom"
)

var ErrInvalidID = errors.New("invalid record id")

//go:generate mockgen -source=store.go -destination=mock_backing/mock_backing.go

/* Provide record lookups against the authoritative store. */
type RecordStore interface {
	// Fetch returns the serialized record for id, or a NotFoundError.
	Fetch(ctx context.Context, id string) ([]byte, error)
	Exists(ctx context.Context, id string) (bool, error)
	Put(ctx context.Context, id string, data []byte) error
	// Delete removes the record, returning NotFoundError if there was nothing to remove.
	Delete(ctx context.Context, id string) (bool, error)
	// Backend names the store kind for metrics and logs.
	Backend() string
}

// Lister is implemented by stores that can enumerate their record ids.
type Lister interface {
	// List calls fn with every id in the store, stopping at the first error fn returns.
	List(ctx context.Context, fn func(id string) error) error
}

type NotFoundError struct{}

func (e *NotFoundError) Error() string {
	return "not found"
}

type AccessError struct {
	msg string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("no access: %v", e.msg)
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." {
		return fmt.Errorf("%w: '%s'", ErrInvalidID, id)
	}
	return nil
}

// reportBackingOpMetric report a backing store method duration for prometheus
func reportBackingOpMetric(backend string, startTime int64, operationName string, err error) {
	result := "ok"
	if IsNotFound(err) {
		result = "not_found"
	} else if err != nil {
		result = "error"
	}
	durationSeconds := float64(time.Now().UnixNano()-startTime) / 1e9
	prom.BackingOperationDuration.WithLabelValues(backend, operationName, result).Observe(durationSeconds)
}
