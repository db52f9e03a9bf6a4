package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// generateOrderNumber returns ORD-YYYYMMDD-XXXXXX with six upper-case hex characters.
func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
