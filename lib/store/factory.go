package store

import (
	"github.com/ValentinKolb/hcdkv/lib/db"
	"github.com/ValentinKolb/hcdkv/lib/db/engines/leveldb"
	"github.com/ValentinKolb/hcdkv/lib/db/engines/maple"
	"github.com/ValentinKolb/hcdkv/lib/db/engines/pebble"
)

// FactoryFor returns the DBFactory of an engine implementation.
func FactoryFor(impl db.Implementation) (DBFactory, error) {
	switch impl {
	case db.ImplPebble:
		return pebble.NewFactory(), nil
	case db.ImplLevelDB:
		return leveldb.NewFactory(), nil
	case db.ImplMaple:
		return maple.NewFactory(), nil
	default:
		return nil, configErrorf("unknown engine %q", impl)
	}
}
