// Package isolation owns the value-space partitioning that keeps test data
// separate from everything else in the shared store, and the purge/seed
// operations that reset that partition between tests.
package isolation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NamespacePrefix marks every record the harness creates as test-owned. No
// production write path ever produces a value with this prefix, which is what
// makes purge-by-namespace safe to run against a live store.
const NamespacePrefix = "itns-"

var (
	ErrBadNamespace     = errors.New("namespace does not carry the test marker")
	ErrNamespaceOverlap = errors.New("namespaces overlap")
)

// Namespace is the deterministic marker stamped on every test-owned record.
type Namespace string

// NewNamespace generates a fresh collision-resistant namespace.
func NewNamespace() Namespace {
	return Namespace(NamespacePrefix + uuid.NewString())
}

func (n Namespace) String() string { return string(n) }

// Validate checks that the namespace carries the reserved test marker.
func (n Namespace) Validate() error {
	if !strings.HasPrefix(string(n), NamespacePrefix) || len(n) == len(NamespacePrefix) {
		return fmt.Errorf("%w: %q must start with %q", ErrBadNamespace, n, NamespacePrefix)
	}
	return nil
}

// ValidateNamespaces rejects a configuration in which any namespace is
// malformed or is a prefix of another. Two suites sharing overlapping
// markers would silently purge each other's records, so this is treated as
// a configuration error at suite start rather than tolerated.
func ValidateNamespaces(namespaces ...Namespace) error {
	for _, ns := range namespaces {
		if err := ns.Validate(); err != nil {
			return err
		}
	}
	for i, a := range namespaces {
		for j, b := range namespaces {
			if i == j {
				continue
			}
			if strings.HasPrefix(string(b), string(a)) {
				return fmt.Errorf("%w: %q is a prefix of %q", ErrNamespaceOverlap, a, b)
			}
		}
	}
	return nil
}
