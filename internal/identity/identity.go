// Package identity manages the stable client identifier used to key
// conversations on the backend.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const idFileName = "client_id"

// Provider supplies a stable client id, generating and persisting one on
// first use. The id survives restarts; the backend uses it to key the
// conversation history.
type Provider struct {
	dir string

	mu sync.Mutex
	id string
}

// NewProvider creates a provider storing its id under dir.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

// ClientID returns the persisted client id, generating a fresh v4 UUID if
// none is stored. A stored value that is not a valid v4 UUID (legacy format)
// is discarded and replaced, never partially reused.
func (p *Provider) ClientID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}

	path := filepath.Join(p.dir, idFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		stored := strings.TrimSpace(string(data))
		if isValidV4(stored) {
			p.id = stored
			return p.id, nil
		}
		// Legacy id format: regenerate below.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read client id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist client id: %w", err)
	}

	p.id = id
	return p.id, nil
}

// Reset removes the stored id. The next ClientID call generates a new one.
func (p *Provider) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.id = ""
	err := os.Remove(filepath.Join(p.dir, idFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove client id: %w", err)
	}
	return nil
}

func isValidV4(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	// uuid.Parse accepts more than the canonical hyphenated form; the
	// backend expects exactly that, so round-trip the formatting too.
	return id.Version() == 4 && id.String() == strings.ToLower(s)
}
