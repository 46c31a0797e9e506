// Package portalloc reserves OS-assigned TCP ports for applications that
// declare a dynamic port, guaranteeing concurrent allocations never collide.
//
// Grounded on the teacher's isPortAvailable/findAvailablePort free
// functions (internal/supervisor/supervisor.go), generalized into a type
// that tracks outstanding reservations in memory, which spec.md §4.1
// requires and the teacher's stateless helpers did not.
package portalloc

import (
	"fmt"
	"net"
	"sync"
)

// Allocator hands out loopback TCP ports and tracks which ones are
// currently reserved so that concurrent Allocate calls never return the
// same port twice.
type Allocator struct {
	mu       sync.Mutex
	reserved map[int]bool
}

// New creates an empty Allocator.
func New() *Allocator {
	return &Allocator{reserved: make(map[int]bool)}
}

// Allocate binds a TCP socket to port 0 on loopback, reads the OS-assigned
// port, closes the socket, and reserves it. It retries on the rare case
// that the OS hands back a port this Allocator already has reserved.
func (a *Allocator) Allocate() (int, error) {
	const maxAttempts = 20
	for attempt := 0; attempt < maxAttempts; attempt++ {
		port, err := bindEphemeral()
		if err != nil {
			return 0, fmt.Errorf("allocate port: %w", err)
		}

		a.mu.Lock()
		if a.reserved[port] {
			a.mu.Unlock()
			continue
		}
		a.reserved[port] = true
		a.mu.Unlock()
		return port, nil
	}
	return 0, fmt.Errorf("allocate port: exhausted %d attempts avoiding collisions", maxAttempts)
}

// Release frees a previously allocated port. It is idempotent: releasing a
// port that isn't reserved (or was never allocated by this Allocator) is a
// no-op, matching spec.md §4.1.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved, port)
}

// IsReserved reports whether this Allocator currently considers port
// reserved. It only reads the reservation set; the process manager claims
// fixed ports through Reserve, which fails when the port is already held.
func (a *Allocator) IsReserved(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reserved[port]
}

// Reserve marks port as held without binding a socket, for fixed ports the
// process manager assigns directly from a spec rather than allocating.
// Returns false without reserving anything if port is already held.
func (a *Allocator) Reserve(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reserved[port] {
		return false
	}
	a.reserved[port] = true
	return true
}

// IsAvailable reports whether port can currently be bound on loopback,
// independent of this Allocator's own bookkeeping. The process manager
// does not call it: a fixed port is checked only against the reservation
// set, not against processes outside the supervisor's management.
func IsAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

func bindEphemeral() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
