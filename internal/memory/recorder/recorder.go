// Package recorder couples the content store and the semantic index behind
// one write path. The two stores share nothing but the logical memory id;
// the recorder is what keeps them consistent: content store first, index
// second, with the content write rolled back when indexing fails.
package recorder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"keepsake/internal/memory"
	"keepsake/internal/memory/contentstore"
	"keepsake/internal/memory/semindex"
)

const lockShards = 64

type Recorder struct {
	store *contentstore.Store
	index *semindex.Index

	locks [lockShards]sync.Mutex
}

func New(store *contentstore.Store, index *semindex.Index) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("recorder: content store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("recorder: semantic index is required")
	}
	return &Recorder{store: store, index: index}, nil
}

// idLock serializes Remember/Forget per logical memory id, so a concurrent
// store-then-delete cannot observe a half-written pair. Locks are striped
// over a fixed set of mutexes: the set never grows with the id space, and
// distinct ids may share a stripe.
func (r *Recorder) idLock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.locks[h.Sum32()%lockShards]
}

// Remember writes content to both stores. When indexing fails and the
// content record was created by this call, the record is removed again; a
// dedup hit (content that already existed) is never rolled back. The index
// metadata carries the record's emotion and tags so index-side statistics
// see them.
func (r *Recorder) Remember(ctx context.Context, content string, opts memory.PutOptions) (memory.Receipt, error) {
	if strings.TrimSpace(content) == "" {
		return memory.Receipt{}, memory.ErrEmptyContent
	}
	opts = memory.NormalizePutOptions(opts)

	// The id is a pure function of the content, so the per-id lock can be
	// taken before the content write. Both halves of the write then sit
	// inside one critical section and a concurrent Forget of the same id
	// cannot run between them.
	sum := sha256.Sum256([]byte(content))
	id := hex.EncodeToString(sum[:])

	lock := r.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	_, created, err := r.store.Put(ctx, content, opts)
	if err != nil {
		return memory.Receipt{}, err
	}

	meta := map[string]any{
		"emotion": opts.Emotion,
		"tags":    opts.Tags,
	}
	vectorID, err := r.index.Add(ctx, id, content, meta)
	if err != nil {
		if created {
			if _, delErr := r.store.Delete(ctx, id); delErr != nil {
				return memory.Receipt{}, fmt.Errorf("recorder: index failed (%v), rollback failed: %w", err, delErr)
			}
		}
		return memory.Receipt{}, fmt.Errorf("recorder: index: %w", err)
	}

	return memory.Receipt{MemoryID: id, VectorID: vectorID, Created: created}, nil
}

// Forget removes a memory from both stores: index entries first, then the
// content record, so a reader never resolves an index hit into a record
// that was deleted underneath it. Reports whether either side removed
// anything.
func (r *Recorder) Forget(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("recorder: id is required")
	}

	lock := r.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	indexed, err := r.index.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	stored, err := r.store.Delete(ctx, id)
	if err != nil {
		return indexed, err
	}
	return indexed || stored, nil
}

// Recall searches the index and resolves matches through the content
// store. Matches whose logical id has no content record keep the index
// document text with Resolved false. The coupling between the stores is a
// convention, not a constraint, and recall must survive the difference.
func (r *Recorder) Recall(ctx context.Context, query string, nResults int, threshold float64) ([]memory.Recollection, error) {
	matches, err := r.index.Search(ctx, query, nResults, threshold)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, matches)
}

// Similar resolves entries similar to an existing memory.
func (r *Recorder) Similar(ctx context.Context, id string, nResults int) ([]memory.Recollection, error) {
	matches, err := r.index.SimilarTo(ctx, id, nResults)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, matches)
}

func (r *Recorder) resolve(ctx context.Context, matches []memory.Match) ([]memory.Recollection, error) {
	out := make([]memory.Recollection, 0, len(matches))
	for _, match := range matches {
		rec := memory.Recollection{Match: match}
		mem, ok, err := r.store.Get(ctx, match.MemoryID)
		if err != nil {
			return nil, err
		}
		if ok {
			rec.Memory = mem
			rec.Resolved = true
		} else {
			rec.Memory = memory.Memory{ID: match.MemoryID, Content: match.Document}
		}
		out = append(out, rec)
	}
	return out, nil
}
