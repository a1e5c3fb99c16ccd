// File: internal/locator/pending.go
package locator

import (
	"time"

	"go.uber.org/zap"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/storage"
)

// PendingSlot is the single pending-highlight record shared between the
// settings surface (writer) and the content runtime (reader). Writing
// overwrites any previous record; there is never more than one live record.
type PendingSlot struct {
	store storage.Store
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time
}

// NewPendingSlot wraps the store. ttl bounds how long a record stays
// applicable after it was written.
func NewPendingSlot(store storage.Store, ttl time.Duration, logger *zap.Logger) *PendingSlot {
	return &PendingSlot{
		store: store,
		ttl:   ttl,
		log:   logger.Named("pending_slot"),
		now:   time.Now,
	}
}

// Put records a highlight to replay on the next visit to url.
func (p *PendingSlot) Put(url, text string) error {
	return p.store.Set(storage.KeyPendingHighlight, schemas.PendingHighlight{
		URL:       url,
		Text:      text,
		CreatedAt: p.now().UTC(),
	})
}

// Peek returns the pending highlight applicable to currentURL. An expired
// record is removed and not returned. A record for a different page is kept
// in place; the matching page may still be loading in another tab.
func (p *PendingSlot) Peek(currentURL string) (schemas.PendingHighlight, bool) {
	var hl schemas.PendingHighlight
	ok, err := p.store.Get(storage.KeyPendingHighlight, &hl)
	if err != nil || !ok {
		return schemas.PendingHighlight{}, false
	}

	if hl.Expired(p.ttl, p.now()) {
		p.log.Debug("Discarding expired pending highlight", zap.String("url", hl.URL))
		p.Clear()
		return schemas.PendingHighlight{}, false
	}
	if !URLMatch(currentURL, hl.URL) {
		return schemas.PendingHighlight{}, false
	}
	return hl, true
}

// Clear removes the record. Safe to call when the slot is already empty.
func (p *PendingSlot) Clear() {
	if err := p.store.Delete(storage.KeyPendingHighlight); err != nil {
		p.log.Debug("Failed to clear pending highlight", zap.Error(err))
	}
}
