package providers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/strandlabs/loom/pkg/models"
)

// PromptCache tracks the fingerprint of the static request prefix
// (system prompt plus tool declarations) per session. Providers with
// server-side prompt caching bill a cache hit only while the prefix is
// byte-stable, so callers use Changed to detect when a session's prefix
// was invalidated.
type PromptCache struct {
	mu           sync.Mutex
	fingerprints map[string]string
}

// NewPromptCache creates an empty prompt cache.
func NewPromptCache() *PromptCache {
	return &PromptCache{fingerprints: make(map[string]string)}
}

// Fingerprint computes a stable digest of the system prompt and tool
// declarations. Tool order matters; the registry already returns
// definitions sorted by name.
func Fingerprint(system string, tools []models.ToolDefinition) string {
	h := sha256.New()
	h.Write([]byte(system))
	h.Write([]byte{0})
	for _, def := range tools {
		raw, err := json.Marshal(def)
		if err != nil {
			continue
		}
		h.Write(raw)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Changed records the fingerprint for a session and reports whether it
// differs from the previous call. The first observation of a session
// reports true.
func (c *PromptCache) Changed(sessionID, fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.fingerprints[sessionID]
	c.fingerprints[sessionID] = fingerprint
	return !ok || prev != fingerprint
}

// Forget drops a session's recorded fingerprint.
func (c *PromptCache) Forget(sessionID string) {
	c.mu.Lock()
	delete(c.fingerprints, sessionID)
	c.mu.Unlock()
}
