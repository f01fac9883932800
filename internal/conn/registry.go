// Package conn tracks the live editor connections held by the gateway.
//
// Each connection is keyed by a short id derived from its target string, so
// the same socket path or address always maps to the same id while it is
// connected. An LLM can therefore reconnect to an editor it saw before and
// get back an id it recognises.
package conn

import (
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"github.com/jpl-au/nvimcp/internal/nvim"
	"github.com/jpl-au/nvimcp/internal/shardmap"
	"github.com/jpl-au/nvimcp/internal/telemetry"
	"github.com/jpl-au/nvimcp/internal/transport"
	"golang.org/x/crypto/blake2b"
)

// ErrConnectionNotFound is returned when no live connection has the id.
var ErrConnectionNotFound = errors.New("connection not found")

// IDLength is the starting length of a connection id in hex characters.
const IDLength = 7

// Connection is one live editor session.
type Connection struct {
	ID          string         `json:"connection_id"`
	Target      string         `json:"target"`
	Kind        transport.Kind `json:"kind"`
	ConnectedAt time.Time      `json:"connected_at"`

	Client *nvim.Client `json:"-"`
}

// Registry maps connection ids to connections. It is safe for concurrent use.
type Registry struct {
	m *shardmap.Map[*Connection]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: shardmap.New[*Connection]()}
}

// ResolveID returns the id target should use. If target is already
// connected, existing is that connection. The id starts at IDLength hex
// characters of the target's BLAKE2b digest and grows one character at a
// time while the prefix is held by a different target. Every prefix is
// checked, since target may still hold a longer id after the shorter one it
// collided with was freed.
func (r *Registry) ResolveID(target string) (id string, existing *Connection) {
	sum := blake2b.Sum256([]byte(target))
	full := hex.EncodeToString(sum[:])
	for n := IDLength; n <= len(full); n++ {
		c, ok := r.m.Load(full[:n])
		if !ok {
			if id == "" {
				id = full[:n]
			}
			continue
		}
		if c.Target == target {
			return full[:n], c
		}
	}
	if id == "" {
		// Every prefix of a 256-bit digest is taken by another target.
		id = full
	}
	return id, nil
}

// InsertIfAbsent stores c unless its id is taken. It returns the connection
// held under the id and whether c was the one inserted.
func (r *Registry) InsertIfAbsent(c *Connection) (*Connection, bool) {
	actual, loaded := r.m.LoadOrStore(c.ID, c)
	if !loaded {
		telemetry.ConnectionsActive.Inc()
	}
	return actual, !loaded
}

// Get returns the connection with id.
func (r *Registry) Get(id string) (*Connection, error) {
	c, ok := r.m.Load(id)
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return c, nil
}

// Client returns the editor client of connection id.
func (r *Registry) Client(id string) (*nvim.Client, error) {
	c, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return c.Client, nil
}

// Remove deletes and returns connection id.
func (r *Registry) Remove(id string) (*Connection, error) {
	c, ok := r.m.LoadAndDelete(id)
	if !ok {
		return nil, ErrConnectionNotFound
	}
	telemetry.ConnectionsActive.Dec()
	return c, nil
}

// RemoveIf deletes id only while it still holds c. It reports whether c was
// removed.
func (r *Registry) RemoveIf(id string, c *Connection) bool {
	removed := false
	r.m.Compute(id, func(old *Connection, loaded bool) (*Connection, bool) {
		if !loaded {
			return nil, false
		}
		if old != c {
			return old, true
		}
		removed = true
		return nil, false
	})
	if removed {
		telemetry.ConnectionsActive.Dec()
	}
	return removed
}

// List returns every connection sorted by id.
func (r *Registry) List() []*Connection {
	out := make([]*Connection, 0, r.m.Len())
	r.m.Range(func(_ string, c *Connection) bool {
		out = append(out, c)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return r.m.Len()
}
