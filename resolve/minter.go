package resolve

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/justapithecus/loom/types"
)

// ULIDMinter is the default identifier authority for deployments
// without an external session registry. IDs are kind-prefixed ULIDs:
// sortable by creation time, collision-free, and opaque to the engine
// (which never assumes id shape).
type ULIDMinter struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDMinter creates a minter with monotonic entropy, so ids minted
// within the same millisecond still sort in mint order.
func NewULIDMinter() *ULIDMinter {
	seed := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &ULIDMinter{
		entropy: ulid.Monotonic(seed, 0),
	}
}

// MintID returns "<kind>_<ulid>". The contextID participates only in
// error reporting; uniqueness comes from the ULID itself.
func (m *ULIDMinter) MintID(kind types.ArtifactKind, contextID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), m.entropy)
	if err != nil {
		return "", fmt.Errorf("mint ulid (kind=%s context=%s): %w", kind, contextID, err)
	}
	return fmt.Sprintf("%s_%s", kind, id.String()), nil
}

// Verify ULIDMinter implements the authority interface.
var _ Minter = (*ULIDMinter)(nil)
