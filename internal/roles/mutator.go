package roles

import (
	"context"
	"slices"

	"github.com/disgoorg/snowflake/v2"
	"github.com/towertools/tiersync/internal/tier"
	"go.uber.org/zap"
)

// Result reports what a mutation did, or would do in dry-run mode.
type Result struct {
	// Changed is false when the member already held exactly the target role.
	Changed bool
	// Removed lists the managed roles taken away.
	Removed []snowflake.ID
	// Added is the role granted, or zero when only removals happened.
	Added snowflake.ID
}

// Mutator applies a resolved tier role against a member's current role set.
// It enforces the invariant that a member holds at most one managed role:
// every other managed role is removed, the target added if missing, and a
// member already holding exactly the target is left untouched with no
// platform calls issued.
type Mutator struct {
	svc     RoleService
	guard   *Guard
	catalog *tier.Catalog
	logger  *zap.Logger
}

// NewMutator creates a mutator for the given catalog's managed roles.
func NewMutator(svc RoleService, guard *Guard, catalog *tier.Catalog, logger *zap.Logger) *Mutator {
	return &Mutator{
		svc:     svc,
		guard:   guard,
		catalog: catalog,
		logger:  logger.Named("mutator"),
	}
}

// Apply reconciles the member's managed roles with the target. A zero target
// removes every managed role. In dry-run mode the decision is computed and
// reported without issuing any platform calls.
func (m *Mutator) Apply(ctx context.Context, member Member, target snowflake.ID, dryRun bool) (Result, error) {
	var held []snowflake.ID

	for _, id := range member.RoleIDs {
		if m.catalog.IsManaged(id) {
			held = append(held, id)
		}
	}

	alreadyCorrect := len(held) == 0 && target == 0 ||
		len(held) == 1 && held[0] == target
	if alreadyCorrect {
		return Result{}, nil
	}

	removals := make([]snowflake.ID, 0, len(held))
	for _, id := range held {
		if id != target {
			removals = append(removals, id)
		}
	}

	addNeeded := target != 0 && !slices.Contains(held, target)

	result := Result{
		Changed: true,
		Removed: removals,
	}
	if addNeeded {
		result.Added = target
	}

	if dryRun {
		m.logger.Info("Would update member roles",
			zap.Uint64("memberID", uint64(member.ID)),
			zap.String("username", member.Username),
			zap.Int("removals", len(removals)),
			zap.Uint64("added", uint64(result.Added)))

		return result, nil
	}

	// Mark the member so our own gateway notifications are ignored
	m.guard.Add(member.ID)
	defer m.guard.Remove(member.ID)

	if err := m.issue(ctx, member, target, removals, addNeeded); err != nil {
		return result, err
	}

	m.logger.Info("Updated member roles",
		zap.Uint64("memberID", uint64(member.ID)),
		zap.String("username", member.Username),
		zap.Int("removals", len(removals)),
		zap.Uint64("added", uint64(result.Added)))

	return result, nil
}

// issue performs the platform calls. When the change involves both removals
// and an addition the full role set is replaced in one member edit; otherwise
// the single-role endpoints are used.
func (m *Mutator) issue(
	ctx context.Context, member Member, target snowflake.ID, removals []snowflake.ID, addNeeded bool,
) error {
	if addNeeded && len(removals) > 0 {
		next := make([]snowflake.ID, 0, len(member.RoleIDs)+1)

		for _, id := range member.RoleIDs {
			if !slices.Contains(removals, id) {
				next = append(next, id)
			}
		}

		next = append(next, target)

		return m.svc.SetRoles(ctx, member.ID, next)
	}

	if addNeeded {
		return m.svc.AddRole(ctx, member.ID, target)
	}

	for _, id := range removals {
		if err := m.svc.RemoveRole(ctx, member.ID, id); err != nil {
			// A stale role id should not block the remaining removals
			m.logger.Warn("Failed to remove managed role",
				zap.Uint64("memberID", uint64(member.ID)),
				zap.Uint64("roleID", uint64(id)),
				zap.Error(err))
		}
	}

	return nil
}

// EnsureRole grants a single role if the member is missing it. Used for the
// baseline verified role, which exists independently of the tier catalog.
// The returned snapshot includes the granted role; callers must pass it to
// any subsequent Apply so a full role-set edit does not drop the grant.
func (m *Mutator) EnsureRole(ctx context.Context, member Member, roleID snowflake.ID) (Member, error) {
	if roleID == 0 || slices.Contains(member.RoleIDs, roleID) {
		return member, nil
	}

	m.guard.Add(member.ID)
	defer m.guard.Remove(member.ID)

	if err := m.svc.AddRole(ctx, member.ID, roleID); err != nil {
		return member, err
	}

	m.logger.Info("Added baseline role",
		zap.Uint64("memberID", uint64(member.ID)),
		zap.Uint64("roleID", uint64(roleID)))

	member.RoleIDs = append(slices.Clone(member.RoleIDs), roleID)

	return member, nil
}
