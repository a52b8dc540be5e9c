package supervisor_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/database/models"
	"github.com/towertools/tiersync/internal/database/types"
	"github.com/towertools/tiersync/internal/roles"
	"github.com/towertools/tiersync/internal/supervisor"
)

const workerMember = snowflake.ID(42)

// memberService is an in-memory RoleService tracking mutation calls.
type memberService struct {
	mu        sync.Mutex
	member    roles.Member
	mutations int
}

func (s *memberService) Member(context.Context, snowflake.ID) (roles.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.member, nil
}

func (s *memberService) Members(context.Context) ([]roles.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return []roles.Member{s.member}, nil
}

func (s *memberService) AddRole(_ context.Context, _, roleID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutations++
	s.member.RoleIDs = append(s.member.RoleIDs, roleID)

	return nil
}

func (s *memberService) RemoveRole(_ context.Context, _, roleID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutations++
	s.member.RoleIDs = slices.DeleteFunc(s.member.RoleIDs, func(id snowflake.ID) bool {
		return id == roleID
	})

	return nil
}

func (s *memberService) SetRoles(_ context.Context, _ snowflake.ID, roleIDs []snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutations++
	s.member.RoleIDs = slices.Clone(roleIDs)

	return nil
}

func (s *memberService) mutationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutations
}

func (s *memberService) roleIDs() []snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.member.RoleIDs)
}

// fakeIdentity resolves one known member to one player.
type fakeIdentity struct {
	player *types.Player
}

func (f *fakeIdentity) GetByDiscordID(_ context.Context, discordID uint64) (*types.Player, error) {
	if f.player == nil || f.player.DiscordID != discordID {
		return nil, models.ErrPlayerNotFound
	}

	return f.player, nil
}

// fakeResults serves rows from a static league table, honoring suppressions
// the way the real queries do.
type fakeResults struct {
	mu         sync.Mutex
	rows       map[string][]*types.TourneyResult
	suppressed map[string]bool
	onFetch    func()
}

func (f *fakeResults) ResultsForGameIDs(
	_ context.Context, league string, gameIDs []string,
) ([]*types.TourneyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch()
	}

	var out []*types.TourneyResult

	for _, r := range f.rows[league] {
		if f.suppressed[r.GameID] {
			continue
		}

		if slices.Contains(gameIDs, r.GameID) {
			out = append(out, r)
		}
	}

	return out, nil
}

func (f *fakeResults) IsSuppressed(_ context.Context, gameID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.suppressed[gameID], nil
}

func (f *fakeResults) setRows(league string, rows []*types.TourneyResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rows[league] = rows
}

func (f *fakeResults) suppress(gameID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.suppressed[gameID] = true
}

type workerFixture struct {
	worker  *supervisor.Worker
	queue   *supervisor.Queue
	svc     *memberService
	results *fakeResults
}

func setupWorker(t *testing.T, roleIDs ...snowflake.ID) *workerFixture {
	t.Helper()

	catalog := debounceCatalog(t)
	guard := roles.NewGuard()
	logger := zap.NewNop()

	svc := &memberService{member: roles.Member{
		ID:       workerMember,
		Username: "player",
		RoleIDs:  roleIDs,
	}}
	mutator := roles.NewMutator(svc, guard, catalog, logger)
	queue := supervisor.NewQueue(16, logger)
	recent := supervisor.NewRecentLog(100)
	ready := supervisor.NewReadiness(func(context.Context) error { return nil }, logger)

	identity := &fakeIdentity{player: &types.Player{
		ID:        1,
		Name:      "player",
		DiscordID: uint64(workerMember),
		Approved:  true,
		GameIDs:   []*types.PlayerGameID{{GameID: "g1", PlayerID: 1}},
	}}
	results := &fakeResults{
		rows:       make(map[string][]*types.TourneyResult),
		suppressed: make(map[string]bool),
	}

	worker := supervisor.NewWorker(
		queue, recent, ready, svc, mutator, identity, results, catalog, debounceVerified,
		supervisor.WorkerSettings{
			PollInterval: 5 * time.Millisecond,
			Cooldown:     time.Hour,
		},
		logger,
	)

	return &workerFixture{worker: worker, queue: queue, svc: svc, results: results}
}

func (f *workerFixture) enqueue(t *testing.T) {
	t.Helper()

	err := f.queue.Enqueue(supervisor.Item{
		MemberID:   workerMember,
		Username:   "player",
		Trigger:    "role change",
		EnqueuedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestWorkerAssignsResolvedRole(t *testing.T) {
	t.Parallel()

	f := setupWorker(t, debounceVerified)
	f.results.setRows("Champion", []*types.TourneyResult{
		{GameID: "g1", League: "Champion", Date: time.Now(), Wave: 520},
	})

	f.enqueue(t)
	require.True(t, f.worker.ProcessOne(context.Background()))

	assert.Contains(t, f.svc.roleIDs(), debounceTierA)
}

func TestWorkerEnsuresVerifiedRoleFirst(t *testing.T) {
	t.Parallel()

	f := setupWorker(t)
	f.enqueue(t)
	require.True(t, f.worker.ProcessOne(context.Background()))

	assert.Contains(t, f.svc.roleIDs(), debounceVerified)
}

func TestWorkerCooldownAllowsOneAttempt(t *testing.T) {
	t.Parallel()

	f := setupWorker(t, debounceVerified)
	f.results.setRows("Champion", []*types.TourneyResult{
		{GameID: "g1", League: "Champion", Date: time.Now(), Wave: 520},
	})

	f.enqueue(t)
	require.True(t, f.worker.ProcessOne(context.Background()))

	first := f.svc.mutationCount()
	require.Positive(t, first)

	// A better result lands immediately after, but the member is still
	// inside the cooldown window.
	f.results.setRows("Champion", []*types.TourneyResult{
		{GameID: "g1", League: "Champion", Date: time.Now(), Wave: 1100},
	})

	f.enqueue(t)
	require.True(t, f.worker.ProcessOne(context.Background()))

	assert.Equal(t, first, f.svc.mutationCount())
	assert.NotContains(t, f.svc.roleIDs(), debounceTierB)
}

func TestWorkerDropsUnlinkedMembers(t *testing.T) {
	t.Parallel()

	f := setupWorker(t)

	err := f.queue.Enqueue(supervisor.Item{
		MemberID: snowflake.ID(777),
		Username: "stranger",
		Trigger:  "member join",
	})
	require.NoError(t, err)

	require.True(t, f.worker.ProcessOne(context.Background()))
	assert.Zero(t, f.svc.mutationCount())
}

func TestWorkerRemovesStaleRoleWhenUnranked(t *testing.T) {
	t.Parallel()

	f := setupWorker(t, debounceVerified, debounceTierA)

	// No rows anywhere: the member no longer qualifies for any tier.
	f.enqueue(t)
	require.True(t, f.worker.ProcessOne(context.Background()))

	assert.NotContains(t, f.svc.roleIDs(), debounceTierA)
	assert.Contains(t, f.svc.roleIDs(), debounceVerified)
}

func TestWorkerKeepsVerifiedRoleThroughTierSwap(t *testing.T) {
	t.Parallel()

	// An unverified member holding a stale tier role qualifies for a new
	// tier. The verified grant must survive the full role-set edit.
	f := setupWorker(t, debounceTierA)
	f.results.setRows("Champion", []*types.TourneyResult{
		{GameID: "g1", League: "Champion", Date: time.Now(), Wave: 1100},
	})

	f.enqueue(t)
	require.True(t, f.worker.ProcessOne(context.Background()))

	roleIDs := f.svc.roleIDs()
	assert.Contains(t, roleIDs, debounceVerified)
	assert.Contains(t, roleIDs, debounceTierB)
	assert.NotContains(t, roleIDs, debounceTierA)
}

func TestWorkerClearsRolesForSuppressedPlayer(t *testing.T) {
	t.Parallel()

	f := setupWorker(t, debounceVerified, debounceTierA)
	f.results.setRows("Champion", []*types.TourneyResult{
		{GameID: "g1", League: "Champion", Date: time.Now(), Wave: 520},
	})
	f.results.suppress("g1")

	f.enqueue(t)
	require.True(t, f.worker.ProcessOne(context.Background()))

	assert.NotContains(t, f.svc.roleIDs(), debounceTierA)
	assert.Contains(t, f.svc.roleIDs(), debounceVerified)
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	f := setupWorker(t, debounceVerified)

	ctx, cancel := context.WithCancel(context.Background())

	go f.worker.Run(ctx)
	cancel()

	done := make(chan struct{})

	go func() {
		f.worker.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestWorkerFinishesInFlightItemOnShutdown(t *testing.T) {
	t.Parallel()

	f := setupWorker(t, debounceVerified)
	f.results.setRows("Champion", []*types.TourneyResult{
		{GameID: "g1", League: "Champion", Date: time.Now(), Wave: 520},
	})

	ctx, cancel := context.WithCancel(context.Background())

	// Shutdown lands while the item is mid-process; the mutation must
	// still be applied before the loop exits.
	f.results.onFetch = cancel
	f.enqueue(t)

	go f.worker.Run(ctx)

	done := make(chan struct{})

	go func() {
		f.worker.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}

	assert.Contains(t, f.svc.roleIDs(), debounceTierA)
}
