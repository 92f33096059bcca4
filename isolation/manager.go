package isolation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/courierlabs/messaging-test-harness/framework"
	"github.com/courierlabs/messaging-test-harness/store"
)

// ErrSeedCollision indicates that a fixture insertion collided with an
// existing record. Seed runs only after a purge, so a collision means the
// purge missed something; proceeding would hand the test contaminated state.
var ErrSeedCollision = errors.New("fixture collided with an existing record")

// SubjectFixture is one declared subject inserted by Seed. Messages are
// seeded as inbound history with sequential numbering.
type SubjectFixture struct {
	ID        string   `yaml:"id"`
	Onboarded bool     `yaml:"onboarded"`
	Messages  []string `yaml:"messages"`
}

// Fixtures is the minimal declared data set a suite starts from.
type Fixtures struct {
	Subjects []SubjectFixture `yaml:"subjects"`
}

// Manager purges and seeds one namespace within the shared store.
type Manager struct {
	store     *store.Store
	namespace Namespace
	logger    framework.Logger
}

func NewManager(st *store.Store, ns Namespace, logger framework.Logger) (*Manager, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &Manager{store: st, namespace: ns, logger: logger}, nil
}

func (m *Manager) Namespace() Namespace { return m.namespace }

// Purge deletes every record in the namespace, walking tables in reverse
// dependency order so that children go before parents. Idempotent: purging
// an already-empty namespace succeeds and deletes nothing.
func (m *Manager) Purge(ctx context.Context) error {
	tables := store.Tables()
	for i := len(tables) - 1; i >= 0; i-- {
		n, err := m.store.DeleteByNamespace(ctx, tables[i], m.namespace.String())
		if err != nil {
			return fmt.Errorf("purge namespace %q: %w", m.namespace, err)
		}
		if n > 0 {
			m.logger.Printf("purge: removed %d rows from %s", n, tables[i])
		}
	}
	return nil
}

// Seed inserts the declared fixture set into the namespace. Must run after
// Purge, never before: any collision with an existing record fails loudly
// with ErrSeedCollision instead of skipping the row.
func (m *Manager) Seed(ctx context.Context, fixtures Fixtures) error {
	for _, sub := range fixtures.Subjects {
		if err := m.store.InsertSubject(ctx, sub.ID, m.namespace.String()); err != nil {
			return fmt.Errorf("%w: subject %q: %v", ErrSeedCollision, sub.ID, err)
		}
		if sub.Onboarded {
			if err := m.store.SetOnboarded(ctx, sub.ID); err != nil {
				return fmt.Errorf("seed namespace %q: %w", m.namespace, err)
			}
		}
		for _, body := range sub.Messages {
			_, err := m.store.AppendMessage(ctx, uuid.NewString(), sub.ID, m.namespace.String(), "in", body)
			if err != nil {
				return fmt.Errorf("%w: message for %q: %v", ErrSeedCollision, sub.ID, err)
			}
		}
		m.logger.Printf("seed: subject %q with %d messages", sub.ID, len(sub.Messages))
	}
	return nil
}

// ResetSubject removes one subject's records from the namespace. Backs the
// targeted DELETE /user/{id} endpoint.
func (m *Manager) ResetSubject(ctx context.Context, subjectID string) error {
	sub, err := m.store.GetSubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil // already absent; reset is idempotent
		}
		return fmt.Errorf("reset subject %q: %w", subjectID, err)
	}
	if sub.Namespace != m.namespace.String() {
		return fmt.Errorf("reset subject %q: record is outside namespace %q", subjectID, m.namespace)
	}
	return m.store.DeleteSubject(ctx, subjectID)
}

// RecordCount reports how many rows the namespace currently holds across all
// tables, for isolation assertions.
func (m *Manager) RecordCount(ctx context.Context) (int, error) {
	total := 0
	for _, table := range store.Tables() {
		n, err := m.store.CountByNamespace(ctx, table, m.namespace.String())
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
