// Package catalog implements the content-addressed Job Catalog (JID)
// and Directory-Name Buffer (C2): an append-only, generation-scoped
// store backed by a bbolt database, content-hashed the way intern_dir
// and intern_job require so two independently started processes
// derive the same id for the same tuple.
package catalog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// DirName is one entry of the directory-name buffer.
type DirName struct {
	DirID         string `json:"dir_id"`
	CanonicalName string `json:"canonical_name"`
}

// JobData is one entry of the job catalog.
type JobData struct {
	JobID     string   `json:"job_id"`
	DirIDPos  int      `json:"dir_id_pos"`
	Priority  byte     `json:"priority"`
	FileList  []string `json:"file_list"`
	LOptions  []string `json:"loptions"`
	SOptions  []string `json:"soptions"`
	Recipient string   `json:"recipient"`
	HostAlias string   `json:"host_alias"`
}

func dirHash(canonicalName string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(canonicalName))
	return fmt.Sprintf("%016x", h.Sum64())
}

func jobHash(dirIDPos int, fileList, loptions, soptions []string, recipient, hostAlias string, priority byte) string {
	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	write(fmt.Sprintf("%d", dirIDPos))
	for _, f := range fileList {
		write(f)
	}
	for _, o := range loptions {
		write(o)
	}
	for _, o := range soptions {
		write(o)
	}
	write(recipient)
	write(hostAlias)
	write(string(priority))
	return fmt.Sprintf("%016x", h.Sum64())
}

const (
	metaBucket = "meta"
	currentKey = "current"
)

func dirsBucket(gen string) []byte     { return []byte("dirs@" + gen) }
func dirIndexBucket(gen string) []byte { return []byte("diridx@" + gen) }
func jobsBucket(gen string) []byte     { return []byte("jobs@" + gen) }
func jobOrderBucket(gen string) []byte { return []byte("joborder@" + gen) }

// Catalog is an attached, generation-aware job catalog and
// directory-name buffer.
type Catalog struct {
	db *bolt.DB

	// mu is the single EDIT lock spec section 4.2's reload_generation
	// names: generation swaps and appends serialize through it.
	mu         sync.RWMutex
	generation string
}

// Open opens (creating if absent) the bbolt database at path and
// attaches the current generation, creating an initial empty
// generation "1" if none is recorded yet.
func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	c := &Catalog{db: db}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}
		gen := meta.Get([]byte(currentKey))
		if gen == nil {
			c.generation = "1"
			if err := meta.Put([]byte(currentKey), []byte("1")); err != nil {
				return err
			}
		} else {
			c.generation = string(gen)
		}
		if _, err := tx.CreateBucketIfNotExists(dirsBucket(c.generation)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(dirIndexBucket(c.generation)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(jobsBucket(c.generation)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(jobOrderBucket(c.generation)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error { return c.db.Close() }

// InternDir returns the existing position for canonicalPath if present,
// otherwise appends a new DirName and returns its position.
func (c *Catalog) InternDir(canonicalPath string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pos int
	err := c.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(dirIndexBucket(c.generation))
		dirs := tx.Bucket(dirsBucket(c.generation))

		if existing := idx.Get([]byte(canonicalPath)); existing != nil {
			pos = int(binary.BigEndian.Uint32(existing))
			return nil
		}

		seq, err := dirs.NextSequence()
		if err != nil {
			return err
		}
		pos = int(seq) - 1

		entry := DirName{DirID: dirHash(canonicalPath), CanonicalName: canonicalPath}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		key := make([]byte, 4)
		binary.BigEndian.PutUint32(key, uint32(pos))
		if err := dirs.Put(key, data); err != nil {
			return err
		}
		return idx.Put([]byte(canonicalPath), key)
	})
	return pos, err
}

// LookupDir returns the DirName at dirIDPos, or ok=false if it does
// not exist in the current generation.
func (c *Catalog) LookupDir(dirIDPos int) (DirName, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var entry DirName
	var ok bool
	err := c.db.View(func(tx *bolt.Tx) error {
		dirs := tx.Bucket(dirsBucket(c.generation))
		key := make([]byte, 4)
		binary.BigEndian.PutUint32(key, uint32(dirIDPos))
		data := dirs.Get(key)
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &entry)
	})
	return entry, ok, err
}

// InternJob returns the existing job_id for the given tuple if present,
// otherwise appends a new JobData and returns its newly computed id.
// Two independently started processes deriving the same tuple always
// produce the same job_id, because the id is the tuple's content hash.
func (c *Catalog) InternJob(dirIDPos int, fileList, loptions, soptions []string, recipient, hostAlias string, priority byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	jobID := jobHash(dirIDPos, fileList, loptions, soptions, recipient, hostAlias, priority)

	err := c.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(jobsBucket(c.generation))
		if jobs.Get([]byte(jobID)) != nil {
			return nil
		}

		entry := JobData{
			JobID:     jobID,
			DirIDPos:  dirIDPos,
			Priority:  priority,
			FileList:  fileList,
			LOptions:  loptions,
			SOptions:  soptions,
			Recipient: recipient,
			HostAlias: hostAlias,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := jobs.Put([]byte(jobID), data); err != nil {
			return err
		}

		order := tx.Bucket(jobOrderBucket(c.generation))
		seq, err := order.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return order.Put(key, []byte(jobID))
	})
	return jobID, err
}

// LookupJob returns the JobData for jobID, or ok=false if it is not
// present in the current generation. Per spec section 3's invariant, a
// caller that gets ok=false must treat the job as unknown and never
// fabricate one.
func (c *Catalog) LookupJob(jobID string) (JobData, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var entry JobData
	var ok bool
	err := c.db.View(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(jobsBucket(c.generation))
		data := jobs.Get([]byte(jobID))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &entry)
	})
	return entry, ok, err
}

// JobsForDir returns every JobData interned against dirIDPos, in
// intern order. Callers use it together with internal/catalog/filter
// to match an arriving file name against the file_list of each job
// already configured for a directory, rather than minting a fresh job
// per distinct file name.
func (c *Catalog) JobsForDir(dirIDPos int) ([]JobData, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var jobs []JobData
	err := c.db.View(func(tx *bolt.Tx) error {
		order := tx.Bucket(jobOrderBucket(c.generation))
		data := tx.Bucket(jobsBucket(c.generation))
		return order.ForEach(func(_, jobID []byte) error {
			raw := data.Get(jobID)
			if raw == nil {
				return nil
			}
			var entry JobData
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			if entry.DirIDPos == dirIDPos {
				jobs = append(jobs, entry)
			}
			return nil
		})
	})
	return jobs, err
}

// Generation returns the currently attached generation id.
func (c *Catalog) Generation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// ReloadGeneration atomically replaces both catalogs with a new,
// empty generation named newGeneration, populated by build. The single
// EDIT lock (mu) is held across the whole swap; concurrent readers see
// either the old or the new generation, never a partial mix.
func (c *Catalog) ReloadGeneration(newGeneration string, build func(tx *bolt.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(dirsBucket(newGeneration)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(dirIndexBucket(newGeneration)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(jobsBucket(newGeneration)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(jobOrderBucket(newGeneration)); err != nil {
			return err
		}
		if build != nil {
			if err := build(tx); err != nil {
				return err
			}
		}
		meta := tx.Bucket([]byte(metaBucket))
		return meta.Put([]byte(currentKey), []byte(newGeneration))
	})
	if err != nil {
		return err
	}
	c.generation = newGeneration
	return nil
}
