// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

// Bucket provides a logical bucket on a kv store by key prefixing, keeping
// the event log's keyspace separate from anything else on the same store.
type Bucket string

type bucketStore struct {
	b   Bucket
	src GetPutter
}

// NewStore creates a bucketed view of the source store.
func (b Bucket) NewStore(src GetPutter) GetPutter {
	return &bucketStore{b, src}
}

func (s *bucketStore) key(key []byte) []byte {
	return append(append(make([]byte, 0, len(s.b)+len(key)), s.b...), key...)
}

func (s *bucketStore) Get(key []byte) ([]byte, error) {
	return s.src.Get(s.key(key))
}

func (s *bucketStore) Has(key []byte) (bool, error) {
	return s.src.Has(s.key(key))
}

func (s *bucketStore) IsNotFound(err error) bool {
	return s.src.IsNotFound(err)
}

func (s *bucketStore) Put(key, val []byte) error {
	return s.src.Put(s.key(key), val)
}

func (s *bucketStore) Delete(key []byte) error {
	return s.src.Delete(s.key(key))
}

func (s *bucketStore) NewIterator(r Range) Iterator {
	start := s.key(r.Start)
	var limit []byte
	if r.Limit != nil {
		limit = s.key(r.Limit)
	} else {
		// smallest key greater than every key of the bucket
		limit = append([]byte(nil), []byte(s.b)...)
		for i := len(limit) - 1; i >= 0; i-- {
			limit[i]++
			if limit[i] != 0 {
				limit = limit[:i+1]
				break
			}
			if i == 0 {
				limit = nil
			}
		}
	}
	return &bucketIterator{s.src.NewIterator(Range{Start: start, Limit: limit}), len(s.b)}
}

type bucketIterator struct {
	Iterator
	prefixLen int
}

func (it *bucketIterator) Key() []byte {
	return it.Iterator.Key()[it.prefixLen:]
}
