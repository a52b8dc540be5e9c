package roles_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/roles"
	"github.com/towertools/tiersync/internal/tier"
)

const (
	memberID   = snowflake.ID(42)
	verifiedID = snowflake.ID(500)
	tierA      = snowflake.ID(100)
	tierB      = snowflake.ID(101)
	tierC      = snowflake.ID(102)
	otherRole  = snowflake.ID(900)
)

// fakeService records platform calls and applies them to an in-memory member.
type fakeService struct {
	mu     sync.Mutex
	member roles.Member
	guard  *roles.Guard

	addCalls      int
	removeCalls   int
	setRolesCalls int
	guardedDuring bool
}

func newFakeService(guard *roles.Guard, roleIDs ...snowflake.ID) *fakeService {
	return &fakeService{
		member: roles.Member{ID: memberID, Username: "player", RoleIDs: roleIDs},
		guard:  guard,
	}
}

func (f *fakeService) Member(context.Context, snowflake.ID) (roles.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.member, nil
}

func (f *fakeService) Members(context.Context) ([]roles.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return []roles.Member{f.member}, nil
}

func (f *fakeService) AddRole(_ context.Context, _, roleID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.addCalls++
	f.noteGuard()
	f.member.RoleIDs = append(f.member.RoleIDs, roleID)

	return nil
}

func (f *fakeService) RemoveRole(_ context.Context, _, roleID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeCalls++
	f.noteGuard()
	f.member.RoleIDs = slices.DeleteFunc(f.member.RoleIDs, func(id snowflake.ID) bool {
		return id == roleID
	})

	return nil
}

func (f *fakeService) SetRoles(_ context.Context, _ snowflake.ID, roleIDs []snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.setRolesCalls++
	f.noteGuard()
	f.member.RoleIDs = slices.Clone(roleIDs)

	return nil
}

func (f *fakeService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.addCalls + f.removeCalls + f.setRolesCalls
}

func (f *fakeService) noteGuard() {
	if f.guard != nil && f.guard.Contains(f.member.ID) {
		f.guardedDuring = true
	}
}

func mutatorCatalog(t *testing.T) *tier.Catalog {
	t.Helper()

	return tier.NewCatalog([]tier.League{
		{
			Name: "Champion",
			Kind: tier.KindWave,
			Tiers: []tier.Tier{
				{Threshold: 500, Role: tier.Role{ID: tierA, Name: "Champion 500"}},
				{Threshold: 1000, Role: tier.Role{ID: tierB, Name: "Champion 1000"}},
			},
		},
		{
			Name: "Platinum",
			Kind: tier.KindWave,
			Tiers: []tier.Tier{
				{Threshold: 250, Role: tier.Role{ID: tierC, Name: "Platinum 250"}},
			},
		},
	})
}

func setupMutator(t *testing.T, roleIDs ...snowflake.ID) (*roles.Mutator, *fakeService) {
	t.Helper()

	guard := roles.NewGuard()
	svc := newFakeService(guard, roleIDs...)
	mutator := roles.NewMutator(svc, guard, mutatorCatalog(t), zap.NewNop())

	return mutator, svc
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	mutator, svc := setupMutator(t, otherRole, tierC)
	ctx := context.Background()

	member, err := svc.Member(ctx, memberID)
	require.NoError(t, err)

	result, err := mutator.Apply(ctx, member, tierA, false)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, tierA, result.Added)
	assert.Equal(t, []snowflake.ID{tierC}, result.Removed)

	callsAfterFirst := svc.calls()

	// Second application with the refreshed member is a no-op.
	member, err = svc.Member(ctx, memberID)
	require.NoError(t, err)

	result, err = mutator.Apply(ctx, member, tierA, false)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, callsAfterFirst, svc.calls())
}

func TestApplyReplacesRolesAtomically(t *testing.T) {
	t.Parallel()

	mutator, svc := setupMutator(t, otherRole, tierB, tierC)
	ctx := context.Background()

	member, err := svc.Member(ctx, memberID)
	require.NoError(t, err)

	result, err := mutator.Apply(ctx, member, tierA, false)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.ElementsMatch(t, []snowflake.ID{tierB, tierC}, result.Removed)

	// Remove-and-add goes out as a single member edit.
	assert.Equal(t, 1, svc.setRolesCalls)
	assert.Zero(t, svc.addCalls)
	assert.Zero(t, svc.removeCalls)

	member, err = svc.Member(ctx, memberID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{otherRole, tierA}, member.RoleIDs)
}

func TestApplyZeroTargetRemovesAllManagedRoles(t *testing.T) {
	t.Parallel()

	mutator, svc := setupMutator(t, otherRole, tierA, tierC)
	ctx := context.Background()

	member, err := svc.Member(ctx, memberID)
	require.NoError(t, err)

	result, err := mutator.Apply(ctx, member, 0, false)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.ElementsMatch(t, []snowflake.ID{tierA, tierC}, result.Removed)
	assert.Zero(t, result.Added)
	assert.Equal(t, 2, svc.removeCalls)

	member, err = svc.Member(ctx, memberID)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{otherRole}, member.RoleIDs)
}

func TestApplyDryRunIssuesNoCalls(t *testing.T) {
	t.Parallel()

	mutator, svc := setupMutator(t, tierB)
	ctx := context.Background()

	member, err := svc.Member(ctx, memberID)
	require.NoError(t, err)

	result, err := mutator.Apply(ctx, member, tierA, true)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, tierA, result.Added)
	assert.Equal(t, []snowflake.ID{tierB}, result.Removed)
	assert.Zero(t, svc.calls())
}

func TestApplyBracketsMutationsWithGuard(t *testing.T) {
	t.Parallel()

	guard := roles.NewGuard()
	svc := newFakeService(guard, tierB)
	mutator := roles.NewMutator(svc, guard, mutatorCatalog(t), zap.NewNop())
	ctx := context.Background()

	member, err := svc.Member(ctx, memberID)
	require.NoError(t, err)

	_, err = mutator.Apply(ctx, member, tierA, false)
	require.NoError(t, err)

	assert.True(t, svc.guardedDuring)
	assert.False(t, guard.Contains(memberID))
}

func TestEnsureRoleOnlyAddsWhenMissing(t *testing.T) {
	t.Parallel()

	mutator, svc := setupMutator(t, otherRole)
	ctx := context.Background()

	member, err := svc.Member(ctx, memberID)
	require.NoError(t, err)

	member, err = mutator.EnsureRole(ctx, member, verifiedID)
	require.NoError(t, err)
	assert.Contains(t, member.RoleIDs, verifiedID)
	assert.Equal(t, 1, svc.addCalls)

	member, err = mutator.EnsureRole(ctx, member, verifiedID)
	require.NoError(t, err)
	assert.Contains(t, member.RoleIDs, verifiedID)
	assert.Equal(t, 1, svc.addCalls)
}

func TestEnsureRoleSnapshotSurvivesApply(t *testing.T) {
	t.Parallel()

	// An unverified member with a stale tier role swaps tiers right after
	// the verified grant. The full role-set edit must carry the grant.
	mutator, svc := setupMutator(t, otherRole, tierB)
	ctx := context.Background()

	member, err := svc.Member(ctx, memberID)
	require.NoError(t, err)

	member, err = mutator.EnsureRole(ctx, member, verifiedID)
	require.NoError(t, err)

	result, err := mutator.Apply(ctx, member, tierA, false)
	require.NoError(t, err)
	assert.True(t, result.Changed)

	member, err = svc.Member(ctx, memberID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{otherRole, verifiedID, tierA}, member.RoleIDs)
}
