// Package filestore implements store.Store on top of a single JSON document on local disk. Every transaction
// reloads the document under an exclusive file lock, applies its changes to the in-memory copy, and atomically
// replaces the file when the transaction succeeds. This keeps the embedded deployment safe to share between
// the service and the contract sweep command.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/cyverse/compute-qms/logging"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "filestore"})

// document is the on-disk layout.
type document struct {
	Quotas       map[string]*model.UserQuota       `json:"quotas"`
	Ownership    map[string]*model.OwnershipRecord `json:"ownership"`
	Transactions []*model.TokenTransaction         `json:"transactions"`
	Contracts    map[string]*model.UserContract    `json:"contracts"`
	Requests     map[string]*model.TokenRequest    `json:"requests"`
}

func newDocument() *document {
	return &document{
		Quotas:       make(map[string]*model.UserQuota),
		Ownership:    make(map[string]*model.OwnershipRecord),
		Transactions: make([]*model.TokenTransaction, 0),
		Contracts:    make(map[string]*model.UserContract),
		Requests:     make(map[string]*model.TokenRequest),
	}
}

// FileStore is the embedded store implementation.
type FileStore struct {
	mu       sync.Mutex
	path     string
	fileLock *flock.Flock
}

// Open opens or creates the document at the given path.
func Open(path string) (*FileStore, error) {
	wrapMsg := "unable to open the file store"

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	s := &FileStore{
		path:     path,
		fileLock: flock.New(path + ".lock"),
	}

	// Create the document if it doesn't exist yet.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithFields(logrus.Fields{"path": path}).Info("initializing a new file store")
		err = s.Transaction(context.Background(), func(tx store.Tx) error {
			tx.(*view).dirty = true
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
	} else if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return s, nil
}

// Close releases the file lock handle.
func (s *FileStore) Close() error {
	return s.fileLock.Close()
}

// load reads the document from disk.
func (s *FileStore) load() (*document, error) {
	doc := newDocument()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return doc, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "unable to read the file store")
	}

	if len(data) > 0 {
		if err = json.Unmarshal(data, doc); err != nil {
			return nil, errors.Wrap(err, "unable to parse the file store")
		}
	}

	// Guard against documents written with missing sections.
	if doc.Quotas == nil {
		doc.Quotas = make(map[string]*model.UserQuota)
	}
	if doc.Ownership == nil {
		doc.Ownership = make(map[string]*model.OwnershipRecord)
	}
	if doc.Contracts == nil {
		doc.Contracts = make(map[string]*model.UserContract)
	}
	if doc.Requests == nil {
		doc.Requests = make(map[string]*model.TokenRequest)
	}

	return doc, nil
}

// save atomically replaces the document on disk.
func (s *FileStore) save(doc *document) error {
	wrapMsg := "unable to write the file store"

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, wrapMsg)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, wrapMsg)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return errors.Wrap(os.Rename(tmpName, s.path), wrapMsg)
}

// Transaction runs fn against a private copy of the document and persists the copy if fn succeeds and changed
// anything.
func (s *FileStore) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fileLock.Lock(); err != nil {
		return errors.Wrap(err, "unable to lock the file store")
	}
	defer func() {
		if err := s.fileLock.Unlock(); err != nil {
			log.Errorf("unable to unlock the file store: %s", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := s.load()
	if err != nil {
		return err
	}

	v := &view{doc: doc}
	if err = fn(v); err != nil {
		return err
	}

	if !v.dirty {
		return nil
	}
	return s.save(doc)
}

// run executes a single operation in its own transaction.
func (s *FileStore) run(ctx context.Context, fn func(v *view) error) error {
	return s.Transaction(ctx, func(tx store.Tx) error {
		return fn(tx.(*view))
	})
}
