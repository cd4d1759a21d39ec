package lfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var (
	errHashMismatch = errors.New("Content hash does not match OID")
	errSizeMismatch = errors.New("Content size does not match")
	errInvalidOid   = errors.New("invalid OID")
)

// Content provides a simple file system based bucket.
type Content struct {
	basePath string
}

func NewContent(basePath string) *Content {
	return &Content{basePath: basePath}
}

// Get opens the object stored under oid. Ranges are not supported,
// the whole object is always returned.
func (s *Content) Get(ctx context.Context, oid string, _ GetOptions) (*Object, error) {
	path, err := s.path(oid)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	obj := s.object(oid, stat)
	obj.Body = f
	return obj, nil
}

// Head returns the metadata of the object stored under oid.
func (s *Content) Head(ctx context.Context, oid string) (*Object, error) {
	path, err := s.path(oid)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return s.object(oid, stat), nil
}

func (s *Content) object(oid string, stat os.FileInfo) *Object {
	return &Object{
		Key:          oid,
		Size:         stat.Size(),
		ETag:         oid,
		LastModified: stat.ModTime(),
		Header: http.Header{
			"Content-Type": {"application/octet-stream"},
		},
	}
}

// Put takes an oid and an io.Reader and writes the content to the store.
func (s *Content) Put(oid string, r io.Reader, size int64) error {
	path, err := s.path(oid)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	file, err := os.CreateTemp(dir, "lfspages_tmp_")
	if err != nil {
		return err
	}
	defer os.Remove(file.Name())

	hash := sha256.New()
	hw := io.MultiWriter(hash, file)

	written, err := io.Copy(hw, r)
	if err != nil {
		file.Close()
		return err
	}
	file.Close()

	if written != size {
		return errSizeMismatch
	}

	shaStr := hex.EncodeToString(hash.Sum(nil))
	if shaStr != oid {
		return errHashMismatch
	}

	return os.Rename(file.Name(), path)
}

func (s *Content) path(oid string) (string, error) {
	if err := validateOid(oid); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, transformKey(oid)), nil
}

// validateOid rejects oids that could address anything outside the object namespace.
func validateOid(oid string) error {
	if oid == "" || strings.ContainsAny(oid, `/\`) || strings.Contains(oid, "..") {
		return errInvalidOid
	}
	return nil
}

func transformKey(key string) string {
	if len(key) < 5 {
		return key
	}
	return filepath.Join(key[0:2], key[2:4], key[4:])
}
