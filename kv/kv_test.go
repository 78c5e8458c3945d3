// Copyright (c) 2019 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerkit/txcore/kv"
)

func TestLevelStoreGetPutDelete(t *testing.T) {
	store := kv.NewMemLevelDB()

	_, err := store.Get([]byte("a"))
	assert.True(t, store.IsNotFound(err))

	assert.Nil(t, store.Put([]byte("a"), []byte("1")))
	val, err := store.Get([]byte("a"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("1"), val)

	has, err := store.Has([]byte("a"))
	assert.Nil(t, err)
	assert.True(t, has)

	assert.Nil(t, store.Delete([]byte("a")))
	_, err = store.Get([]byte("a"))
	assert.True(t, store.IsNotFound(err))
}

func TestLevelStoreBulk(t *testing.T) {
	store := kv.NewMemLevelDB()
	bulk := store.Bulk()
	assert.Nil(t, bulk.Put([]byte("x"), []byte("1")))
	assert.Nil(t, bulk.Put([]byte("y"), []byte("2")))
	assert.Nil(t, bulk.Write())

	val, err := store.Get([]byte("x"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("1"), val)
}

func TestBucketNamespaces(t *testing.T) {
	store := kv.NewMemLevelDB()
	a := kv.Bucket("a/").NewStore(store)
	b := kv.Bucket("b/").NewStore(store)

	assert.Nil(t, a.Put([]byte("k"), []byte("from-a")))
	assert.Nil(t, b.Put([]byte("k"), []byte("from-b")))

	va, err := a.Get([]byte("k"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("from-a"), va)

	vb, err := b.Get([]byte("k"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("from-b"), vb)
}

func TestLevelStoreIterate(t *testing.T) {
	store := kv.NewMemLevelDB()
	for _, k := range []string{"a", "b", "c"} {
		assert.Nil(t, store.Put([]byte(k), []byte(k)))
	}
	it := store.Iterate(kv.Range{})
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Nil(t, it.Error())
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
