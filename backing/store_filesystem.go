package backing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
)

/* Store records on local filesystem, one file per id. */
type StoreFilesystem struct {
	root string
}

// NewEmptyLocalStore returns a RecordStore with no data.
// Intended for testing, as aborted tests may otherwise leave files on disk.
func NewEmptyLocalStore(root string) (*StoreFilesystem, error) {
	err := os.RemoveAll(root)
	if err != nil {
		return nil, err
	}
	return NewLocalStore(root)
}

func NewLocalStore(root string) (*StoreFilesystem, error) {
	err := os.MkdirAll(root, 0755)
	return &StoreFilesystem{root}, err
}

func (s *StoreFilesystem) GetRootPath() string {
	return s.root
}

func (s *StoreFilesystem) Backend() string { return "local" }

// path shards records by the first two characters of the escaped id.
func (s *StoreFilesystem) path(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	name := url.PathEscape(id)
	// dot files are reserved for in progress writes
	if name[0] == '.' {
		name = "%2E" + name[1:]
	}
	second := "_"
	if len(name) > 1 {
		second = name[1:2]
	}
	return filepath.Join(s.root, name[0:1], second, name), nil
}

func (s *StoreFilesystem) Fetch(ctx context.Context, id string) ([]byte, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "fetch", err)
	}()
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w", &NotFoundError{})
			return nil, err
		}
		err = fmt.Errorf("%w", &AccessError{msg: fmt.Sprintf("%v", err)})
		return nil, err
	}
	return data, nil
}

func (s *StoreFilesystem) Exists(ctx context.Context, id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return true, nil
	} else if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else {
		return false, fmt.Errorf("%w", &AccessError{msg: fmt.Sprintf("%v", err)})
	}
}

func (s *StoreFilesystem) Put(ctx context.Context, id string, data []byte) error {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "put", err)
	}()
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create record directory: %w", err)
	}
	// write then rename so readers never see a partial record
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("could not save record as temp file couldn't be opened: %w", err)
	}
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("could not save record: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		st.Logger.Warn().Err(err).Str("id", id).Msg("failed to move record into place")
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *StoreFilesystem) Delete(ctx context.Context, id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if err != nil {
		e := fmt.Errorf("%w", &AccessError{msg: fmt.Sprintf("%v", err)})
		if errors.Is(err, fs.ErrNotExist) {
			e = fmt.Errorf("%w", &NotFoundError{})
		}
		return false, e
	}
	return true, nil
}

// List walks the shard directories, visiting ids in lexical order of their file names.
func (s *StoreFilesystem) List(ctx context.Context, fn func(id string) error) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || d.Name()[0] == '.' {
			return nil
		}
		id, err := url.PathUnescape(d.Name())
		if err != nil {
			st.Logger.Warn().Str("path", path).Msg("skipping file with undecodable name")
			return nil
		}
		return fn(id)
	})
}
