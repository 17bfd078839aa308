package booking

import "fmt"

// Redis key pattern helpers
//
// Keys are namespaced so that several boards can share one Redis server.
//
// Key pattern: rota:{namespace}:{entity}

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "default"

// BookingsKey returns the Redis key holding the JSON-encoded Map.
// Pattern: rota:{namespace}:bookings
func BookingsKey(namespace string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return fmt.Sprintf("rota:%s:bookings", namespace)
}
