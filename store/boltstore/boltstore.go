// Package boltstore implements store.Store on a bbolt file.
//
// The file holds three top-level buckets:
//
//	datasetsv1  dataset name -> JSON store.DatasetInfo
//	attrsv1     object -> sub-bucket of key -> value ("/" is the file root)
//	pagesv1     dataset name -> sub-bucket of chunk key -> page
//
// Every page is a section.PageHeader followed by the compressed chunk. Each
// sub-array write runs in one bbolt transaction, so a failed write leaves no
// page half-updated. bbolt holds an exclusive file lock for a writable handle;
// readers share that handle or open the file read-only once the writer closes.
package boltstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/internal/options"
	"github.com/arloliu/atmogrid/internal/pool"
	"github.com/arloliu/atmogrid/store"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	datasetsBucket = []byte("datasetsv1")
	attrsBucket    = []byte("attrsv1")
	pagesBucket    = []byte("pagesv1")
)

// rootAttrKey names the attribute bucket of the file root.
const rootAttrKey = "/"

// Store is a store.Store persisted in a bbolt file.
type Store struct {
	path        string
	db          *bolt.DB
	logger      *zap.Logger
	readOnly    bool
	timeout     time.Duration
	compression format.CompressionType
	closed      atomic.Bool

	reads  atomic.Uint64
	writes atomic.Uint64
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the store file at path.
//
// Parameters:
//   - path: bbolt file path
//   - opts: WithLogger, WithReadOnly, WithTimeout, WithCompression
//
// Returns:
//   - *Store: open store
//   - error: option, lock or initialization failure
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:        path,
		logger:      zap.NewNop(),
		timeout:     time.Second,
		compression: format.CompressionNone,
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	if s.readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open read-only store %s: %w", path, err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: s.timeout, ReadOnly: s.readOnly})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	s.db = db

	if !s.readOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			for _, name := range [][]byte{datasetsBucket, attrsBucket, pagesBucket} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return err
				}
			}
			_, err := tx.Bucket(attrsBucket).CreateBucketIfNotExists([]byte(rootAttrKey))

			return err
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize store %s: %w", path, err)
		}
	}

	s.logger.Info("Opened grid store",
		zap.String("path", path),
		zap.Bool("read_only", s.readOnly),
		zap.Stringer("compression", s.compression))

	return s, nil
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// CreateDataset implements store.Store.
func (s *Store) CreateDataset(info store.DatasetInfo) error {
	if err := s.writable(); err != nil {
		return err
	}

	info = info.Clone()
	if info.Compression == 0 {
		info.Compression = s.compression
	}
	if err := info.Validate(); err != nil {
		return err
	}
	if info.Name == rootAttrKey {
		return fmt.Errorf("%w: dataset name %q is reserved", errs.ErrInvalidView, info.Name)
	}

	meta, err := json.Marshal(info)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(info.Name)
		datasets := tx.Bucket(datasetsBucket)
		if datasets.Get(key) != nil {
			return fmt.Errorf("%w: %q", errs.ErrDatasetExists, info.Name)
		}
		if err := datasets.Put(key, meta); err != nil {
			return err
		}
		if _, err := tx.Bucket(attrsBucket).CreateBucket(key); err != nil {
			return err
		}
		_, err := tx.Bucket(pagesBucket).CreateBucket(key)

		return err
	})
	if err != nil {
		return err
	}

	s.logger.Debug("Created dataset",
		zap.String("dataset", info.Name),
		zap.Ints("shape", info.Shape),
		zap.Ints("chunk_shape", info.ChunkShape),
		zap.Stringer("dtype", info.DType),
		zap.Stringer("compression", info.Compression))

	return nil
}

// Dataset implements store.Store.
func (s *Store) Dataset(name string) (store.DatasetInfo, error) {
	var info store.DatasetInfo
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		info, err = loadInfo(tx, name)

		return err
	})

	return info, err
}

// Datasets implements store.Store.
func (s *Store) Datasets() ([]string, error) {
	var names []string
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(datasetsBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})

	return names, err
}

// ReadSubarray implements store.Store.
func (s *Store) ReadSubarray(name string, start, count []int) ([]byte, error) {
	var data []byte
	err := s.view(func(tx *bolt.Tx) error {
		info, err := loadInfo(tx, name)
		if err != nil {
			return err
		}
		data, err = store.ReadRegion(&txPages{tx: tx, info: info}, info, start, count)

		return err
	})
	if err != nil {
		return nil, err
	}
	s.reads.Add(1)

	return data, nil
}

// WriteSubarray implements store.Store.
func (s *Store) WriteSubarray(name string, start, count []int, data []byte) error {
	if err := s.writable(); err != nil {
		return err
	}

	pio := &txPages{}
	defer pio.release()

	err := s.db.Update(func(tx *bolt.Tx) error {
		info, err := loadInfo(tx, name)
		if err != nil {
			return err
		}
		pio.tx, pio.info = tx, info

		return store.WriteRegion(pio, info, start, count, data)
	})
	if err != nil {
		return err
	}
	s.writes.Add(1)

	return nil
}

// Attr implements store.Store.
func (s *Store) Attr(object, key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		b, err := attrBucket(tx, object)
		if err != nil {
			return err
		}
		if v := b.Get([]byte(key)); v != nil {
			value, ok = string(v), true
		}

		return nil
	})

	return value, ok, err
}

// SetAttr implements store.Store.
func (s *Store) SetAttr(object, key, value string) error {
	return s.update(func(tx *bolt.Tx) error {
		b, err := attrBucket(tx, object)
		if err != nil {
			return err
		}

		return b.Put([]byte(key), []byte(value))
	})
}

// DeleteAttr implements store.Store.
func (s *Store) DeleteAttr(object, key string) error {
	return s.update(func(tx *bolt.Tx) error {
		b, err := attrBucket(tx, object)
		if err != nil {
			return err
		}

		return b.Delete([]byte(key))
	})
}

// Attrs implements store.Store.
func (s *Store) Attrs(object string) (map[string]string, error) {
	attrs := make(map[string]string)
	err := s.view(func(tx *bolt.Tx) error {
		b, err := attrBucket(tx, object)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			attrs[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return attrs, nil
}

// ReadOnly implements store.Store.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Close implements store.Store. Closing twice is a no-op.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	return s.db.Close()
}

func (s *Store) writable() error {
	if s.closed.Load() {
		return errs.ErrClosed
	}
	if s.readOnly {
		return errs.ErrReadOnly
	}

	return nil
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	if s.closed.Load() {
		return errs.ErrClosed
	}

	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(datasetsBucket) == nil {
			return fmt.Errorf("%w: %s is not a grid store", errs.ErrDatasetNotFound, s.path)
		}

		return fn(tx)
	})
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	if err := s.writable(); err != nil {
		return err
	}

	return s.db.Update(fn)
}

func loadInfo(tx *bolt.Tx, name string) (store.DatasetInfo, error) {
	meta := tx.Bucket(datasetsBucket).Get([]byte(name))
	if meta == nil {
		return store.DatasetInfo{}, fmt.Errorf("%w: %q", errs.ErrDatasetNotFound, name)
	}

	var info store.DatasetInfo
	if err := json.Unmarshal(meta, &info); err != nil {
		return store.DatasetInfo{}, fmt.Errorf("decode descriptor of %q: %w", name, err)
	}

	return info, nil
}

func attrBucket(tx *bolt.Tx, object string) (*bolt.Bucket, error) {
	key := object
	if key == store.RootObject {
		key = rootAttrKey
	}

	attrs := tx.Bucket(attrsBucket)
	if attrs == nil {
		return nil, errors.New("attribute bucket missing")
	}
	b := attrs.Bucket([]byte(key))
	if b == nil {
		return nil, fmt.Errorf("%w: %q", errs.ErrDatasetNotFound, object)
	}

	return b, nil
}

// txPages adapts one transaction's page bucket to store.PageIO.
type txPages struct {
	tx   *bolt.Tx
	info store.DatasetInfo
	bufs []*pool.ByteBuffer
}

func (p *txPages) bucket() (*bolt.Bucket, error) {
	b := p.tx.Bucket(pagesBucket).Bucket([]byte(p.info.Name))
	if b == nil {
		return nil, fmt.Errorf("%w: pages of %q", errs.ErrDatasetNotFound, p.info.Name)
	}

	return b, nil
}

// LoadPage implements store.PageIO.
func (p *txPages) LoadPage(key string) ([]byte, bool, error) {
	b, err := p.bucket()
	if err != nil {
		return nil, false, err
	}
	stored := b.Get([]byte(key))
	if stored == nil {
		return nil, false, nil
	}

	raw, err := decodePage(p.info, key, stored)
	if err != nil {
		return nil, false, err
	}

	return raw, true, nil
}

// StorePage implements store.PageIO. The encoded page must outlive the
// transaction, so its buffer is released only after commit.
func (p *txPages) StorePage(key string, page []byte) error {
	b, err := p.bucket()
	if err != nil {
		return err
	}

	buf := pool.GetPageBuffer()
	p.bufs = append(p.bufs, buf)

	stored, err := encodePage(p.info, page, buf)
	if err != nil {
		return err
	}

	return b.Put([]byte(key), stored)
}

func (p *txPages) release() {
	for _, buf := range p.bufs {
		pool.PutPageBuffer(buf)
	}
	p.bufs = nil
}
