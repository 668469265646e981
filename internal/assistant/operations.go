package assistant

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/a3tai/pdf-assistant/internal/models"
)

// operationLog remembers recent operation responses so their status can be
// queried after the request that ran them has returned.
type operationLog struct {
	cache *cache.Cache
}

func newOperationLog(ttl time.Duration) *operationLog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &operationLog{cache: cache.New(ttl, ttl/6)}
}

func (l *operationLog) save(resp models.PDFOperationResponse) {
	l.cache.Set(resp.OperationID, resp, cache.DefaultExpiration)
}

func (l *operationLog) get(id string) (models.PDFOperationResponse, bool) {
	if x, found := l.cache.Get(id); found {
		return x.(models.PDFOperationResponse), true
	}
	return models.PDFOperationResponse{}, false
}
