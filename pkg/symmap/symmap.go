// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package symmap reads and writes symbol maps: the per-build record of which
// function and global names were encoded, and to what. The decryption tooling
// consumes these files to reverse obfuscated output.
package symmap

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	version "github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/twmb/murmur3"
	"github.com/vmihailenco/msgpack/v5"
)

// Format is the map format version written by this package. A reader accepts
// any file whose major version matches.
const Format = "1.0.0"

// Kind says what a map entry names.
type Kind uint8

const (
	KindFunc Kind = iota + 1
	KindGlobal
)

func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindGlobal:
		return "global"
	}
	return "unknown"
}

// Entry records one encoded symbol.
type Entry struct {
	Kind    Kind   `msgpack:"kind"`
	Plain   string `msgpack:"plain"`
	Encoded string `msgpack:"encoded"`
}

// File is a symbol map. Checksum fingerprints the key the symbols were
// encoded with, so a reader can detect a key mismatch before trusting any
// decoded output.
type File struct {
	Version  string  `msgpack:"version"`
	BuildID  string  `msgpack:"build_id"`
	Checksum uint64  `msgpack:"checksum"`
	Entries  []Entry `msgpack:"entries"`

	index map[indexKey]int
}

type indexKey struct {
	kind  Kind
	plain string
}

// New returns an empty map for a build using the given key.
func New(key []byte) *File {
	return &File{
		Version:  Format,
		BuildID:  uuid.NewString(),
		Checksum: murmur3.Sum64(key),
	}
}

// MatchesKey reports whether the map was produced with key.
func (f *File) MatchesKey(key []byte) bool {
	return f.Checksum == murmur3.Sum64(key)
}

// AddFunc records an encoded function name. Re-adding a name replaces its
// encoded form.
func (f *File) AddFunc(plain, encoded string) {
	f.add(KindFunc, plain, encoded)
}

// AddGlobal records an encoded global.
func (f *File) AddGlobal(plain, encoded string) {
	f.add(KindGlobal, plain, encoded)
}

func (f *File) add(kind Kind, plain, encoded string) {
	if f.index == nil {
		f.index = make(map[indexKey]int)
	}
	k := indexKey{kind: kind, plain: plain}
	if i, ok := f.index[k]; ok {
		f.Entries[i].Encoded = encoded
		return
	}
	f.index[k] = len(f.Entries)
	f.Entries = append(f.Entries, Entry{Kind: kind, Plain: plain, Encoded: encoded})
}

// Lookup returns the entry for a plain name.
func (f *File) Lookup(kind Kind, plain string) (Entry, bool) {
	i, ok := f.index[indexKey{kind: kind, plain: plain}]
	if !ok {
		return Entry{}, false
	}
	return f.Entries[i], true
}

func (f *File) reindex() {
	f.index = make(map[indexKey]int, len(f.Entries))
	for i, e := range f.Entries {
		f.index[indexKey{kind: e.Kind, plain: e.Plain}] = i
	}
}

// Decode parses a map from its serialized form and checks the format version.
func Decode(data []byte) (*File, error) {
	var f File
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "symmap: decode")
	}
	have, err := version.NewVersion(f.Version)
	if err != nil {
		return nil, errors.Wrapf(err, "symmap: bad format version %q", f.Version)
	}
	want := version.Must(version.NewVersion(Format))
	if have.Segments()[0] != want.Segments()[0] {
		return nil, errors.Errorf("symmap: format version %s is not compatible with %s", f.Version, Format)
	}
	f.reindex()
	return &f, nil
}

// Load reads and decodes the map at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "symmap: %s", path)
	}
	return f, nil
}

// Write stores the map at path. Concurrent builds writing the same path are
// serialized through a lock file, and an existing map produced with the same
// key is merged rather than clobbered. The file appears atomically via a
// rename.
func (f *File) Write(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "symmap: lock %s", path)
	}
	defer lock.Unlock()

	merged := f
	prev, err := Load(path)
	switch {
	case err == nil:
		if prev.Checksum != f.Checksum {
			return errors.Errorf("symmap: %s was written with a different key", path)
		}
		for _, e := range f.Entries {
			prev.add(e.Kind, e.Plain, e.Encoded)
		}
		prev.BuildID = f.BuildID
		merged = prev
	case errors.Is(err, fs.ErrNotExist):
	default:
		return err
	}

	data, err := msgpack.Marshal(merged)
	if err != nil {
		return errors.Wrap(err, "symmap: encode")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".symmap-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
