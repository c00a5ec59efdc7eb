package subscribers

import (
	"time"

	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/storage"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/rs/zerolog"
)

// base carries what every persisting subscriber needs
type base struct {
	name      string
	publisher string
	store     storage.Store
	logger    zerolog.Logger
}

func newBase(name, publisher string, store storage.Store) base {
	return base{
		name:      name,
		publisher: publisher,
		store:     store,
		logger:    log.WithSubscriber(name),
	}
}

func (b *base) Name() string      { return b.name }
func (b *base) Publisher() string { return b.publisher }

// persist stores one row. A failed write is returned to the bus, which
// logs it and keeps dispatching.
func (b *base) persist(t time.Time, row types.Row) error {
	if t.IsZero() {
		t = time.Now()
	}
	_, err := b.store.Add(b.name, t, row)
	return err
}
