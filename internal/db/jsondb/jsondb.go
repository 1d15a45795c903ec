// Package jsondb implements the key-value storage on top of a single JSON
// file. The whole cache is held in memory and rewritten to disk on every Set,
// so a later Get (or a later process) observes the write.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONDB is a file-backed key-value store. A JSONDB with an empty file name
// never touches the disk (see memorystorage).
type JSONDB struct {
	mu       sync.RWMutex
	fileName string
	Cache    CacheStruct
}

// CacheStruct is the on-disk document.
type CacheStruct struct {
	Values map[string]string
}

func initDBFile(fileName string) error {
	dbFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(dbFile, `{
	"Values": {}
}`)
	if err != nil {
		return err
	}
	return dbFile.Close()
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %s", err)
	}

	tmpName := fileName + ".tmp"
	if err := os.WriteFile(tmpName, jsonData, 0644); err != nil {
		return fmt.Errorf("error writing to file: %s", err)
	}

	if err := os.Rename(tmpName, fileName); err != nil {
		return fmt.Errorf("error replacing file: %s", err)
	}

	return nil
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(cache)
	if err != nil {
		return err
	}
	if cache.Values == nil {
		cache.Values = map[string]string{}
	}

	return nil
}

// New opens fileName, creating an empty document when it does not exist.
func New(fileName string) (*JSONDB, error) {
	simpleJSONDB := &JSONDB{
		fileName: fileName,
		Cache:    CacheStruct{},
	}

	err := parseJSONFile(simpleJSONDB.fileName, &simpleJSONDB.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `parseJSONFile()` calling: %w", err)
		}
		err := initDBFile(fileName)
		if err != nil {
			return nil, err
		}
		err = parseJSONFile(simpleJSONDB.fileName, &simpleJSONDB.Cache)
		if err != nil {
			return nil, err
		}
	}

	return simpleJSONDB, nil
}

// NewInMemory returns a JSONDB that keeps everything in memory.
func NewInMemory() *JSONDB {
	return &JSONDB{
		Cache: CacheStruct{Values: map[string]string{}},
	}
}

// FileName returns the backing file, empty for an in-memory instance.
func (db *JSONDB) FileName() string {
	return db.fileName
}

func (db *JSONDB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	value, found := db.Cache.Values[key]
	if !found {
		return nil, false, nil
	}

	return []byte(value), true, nil
}

func (db *JSONDB) Set(ctx context.Context, key string, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	next := make(map[string]string, len(db.Cache.Values)+1)
	for k, v := range db.Cache.Values {
		next[k] = v
	}
	next[key] = string(value)

	// the new document becomes visible only once it is on disk
	if err := db.flushValues(next); err != nil {
		return fmt.Errorf("in internal/db/jsondb/jsondb.go/Set(): error while `db.flushValues()` calling: %w", err)
	}
	db.Cache.Values = next

	return nil
}

// Reload re-reads the backing file, picking up writes made by another process.
func (db *JSONDB) Reload(ctx context.Context) error {
	if db.fileName == "" {
		return nil
	}

	fresh := CacheStruct{}
	if err := parseJSONFile(db.fileName, &fresh); err != nil {
		return fmt.Errorf("in internal/db/jsondb/jsondb.go/Reload(): error while `parseJSONFile()` calling: %w", err)
	}

	db.mu.Lock()
	db.Cache = fresh
	db.mu.Unlock()

	return nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

func (db *JSONDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.flush()
}

func (db *JSONDB) flush() error {
	return db.flushValues(db.Cache.Values)
}

func (db *JSONDB) flushValues(values map[string]string) error {
	if db.fileName == "" {
		return nil
	}

	return writeToJSONFile(db.fileName, CacheStruct{Values: values})
}
