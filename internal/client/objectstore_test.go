package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/varys/internal/cluster"
)

func TestObjectStorePutGet(t *testing.T) {
	s := NewObjectStore()
	id := cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}
	s.Put(id, []byte("hello"))

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestObjectStoreGetMissing(t *testing.T) {
	s := NewObjectStore()
	_, err := s.Get(cluster.DataIdentifier{CoflowID: "x", FlowID: "y"})
	assert.Error(t, err)
}

func TestObjectStorePutCopiesValue(t *testing.T) {
	s := NewObjectStore()
	id := cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}
	original := []byte("hello")
	s.Put(id, original)
	original[0] = 'X'

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestObjectStoreDelete(t *testing.T) {
	s := NewObjectStore()
	id := cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}
	s.Put(id, []byte("hello"))
	s.Delete(id)

	_, err := s.Get(id)
	assert.Error(t, err)
}
