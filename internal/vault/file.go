package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout of a credential export:
//
//	credentials:
//	  - name: Example
//	    login: alice
//	    secret: hunter2
//	    origins: ["*.example.com"]
//	    otp: JBSWY3DPEHPK3PXP
type fileFormat struct {
	Credentials []CredentialView `yaml:"credentials"`
}

// FileStore serves credentials from a YAML export. The file is read on
// first use and cached. Lock wipes the cache and makes ListAll return
// ErrLocked until Unlock is called; the file is reread after that.
type FileStore struct {
	path string

	mu     sync.Mutex
	cached []CredentialView
	loaded bool
	locked bool
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) ListAll(ctx context.Context) ([]CredentialView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.locked {
		return nil, ErrLocked
	}
	if !f.loaded {
		creds, err := f.load()
		if err != nil {
			return nil, err
		}
		f.cached = creds
		f.loaded = true
	}
	return cloneViews(f.cached), nil
}

func (f *FileStore) Lock(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.cached {
		f.cached[i] = CredentialView{}
	}
	f.cached = nil
	f.loaded = false
	f.locked = true
	return nil
}

// Unlock allows ListAll again. The file is reread on the next call.
func (f *FileStore) Unlock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = false
}

func (f *FileStore) Locked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked
}

func (f *FileStore) load() ([]CredentialView, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read vault file: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode parses a YAML credential export. Unknown keys are rejected so a
// typo in "origins" cannot silently leave a credential without scope.
func Decode(r io.Reader) ([]CredentialView, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var ff fileFormat
	if err := dec.Decode(&ff); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse vault file: %w", err)
	}
	return ff.Credentials, nil
}
