package quota

import (
	"fmt"

	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
)

// ExceededError is returned when a quota check denies the request. Transports
// map it to their rate-limit response using RetryAfterSeconds.
type ExceededError struct {
	Resource models.QuotaResource
	Decision models.QuotaDecision
}

// Error implements the error interface
func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s, retry after %ds", e.Resource, e.Decision.RetryAfterSeconds)
}
