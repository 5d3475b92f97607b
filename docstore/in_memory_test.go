package docstore_test

import (
	"testing"

	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/docstore/storetest"
)

func TestInMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		return docstore.NewInMemoryStore(nil)
	})
}
