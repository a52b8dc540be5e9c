package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/database/types"
	"github.com/towertools/tiersync/internal/roles"
	"github.com/towertools/tiersync/internal/supervisor"
)

const (
	listenerGuild  = snowflake.ID(9000)
	listenerMember = snowflake.ID(42)
)

type listenerFixture struct {
	adapter   bot.EventListener
	queue     *supervisor.Queue
	debouncer *supervisor.Debouncer
	guard     *roles.Guard
}

func setupListener(t *testing.T) *listenerFixture {
	t.Helper()

	logger := zap.NewNop()
	guard := roles.NewGuard()
	queue := supervisor.NewQueue(16, logger)
	sink := &itemSink{}

	// A long delay keeps observations pending for the duration of the test.
	debouncer := supervisor.NewDebouncer(
		time.Hour, debounceVerified, debounceCatalog(t), sink.collect, logger,
	)
	t.Cleanup(debouncer.Flush)

	identity := &fakeIdentity{player: &types.Player{
		ID:        1,
		Name:      "player",
		DiscordID: uint64(listenerMember),
		Approved:  true,
	}}
	ready := supervisor.NewReadiness(func(context.Context) error { return nil }, logger)

	listener := supervisor.NewListener(
		listenerGuild, queue, debouncer, guard, identity, ready, logger,
	)

	return &listenerFixture{
		adapter:   listener.Adapter(),
		queue:     queue,
		debouncer: debouncer,
		guard:     guard,
	}
}

func memberUpdate(
	guildID, memberID snowflake.ID, isBot bool, before, after []snowflake.ID,
) *events.GuildMemberUpdate {
	return &events.GuildMemberUpdate{
		GenericGuildMember: &events.GenericGuildMember{
			GuildID: guildID,
			Member: discord.Member{
				User:    discord.User{ID: memberID, Username: "player", Bot: isBot},
				RoleIDs: after,
			},
		},
		OldMember: discord.Member{
			User:    discord.User{ID: memberID, Username: "player", Bot: isBot},
			RoleIDs: before,
		},
	}
}

func TestListenerDropsGuardedMemberUpdates(t *testing.T) {
	t.Parallel()

	f := setupListener(t)

	before := []snowflake.ID{debounceOther}
	after := []snowflake.ID{debounceOther, debounceVerified}

	// Role changes written by the mutator arrive back over the gateway
	// while the member is still guarded; they must never reach the
	// debouncer.
	f.guard.Add(listenerMember)
	f.adapter.OnEvent(memberUpdate(listenerGuild, listenerMember, false, before, after))
	assert.Zero(t, f.debouncer.Pending())

	f.guard.Remove(listenerMember)
	f.adapter.OnEvent(memberUpdate(listenerGuild, listenerMember, false, before, after))
	assert.Equal(t, 1, f.debouncer.Pending())
}

func TestListenerIgnoresBotAccounts(t *testing.T) {
	t.Parallel()

	f := setupListener(t)

	f.adapter.OnEvent(memberUpdate(listenerGuild, listenerMember, true,
		nil, []snowflake.ID{debounceVerified}))

	assert.Zero(t, f.debouncer.Pending())
}

func TestListenerIgnoresOtherGuilds(t *testing.T) {
	t.Parallel()

	f := setupListener(t)

	f.adapter.OnEvent(memberUpdate(listenerGuild+1, listenerMember, false,
		nil, []snowflake.ID{debounceVerified}))

	assert.Zero(t, f.debouncer.Pending())
}

func TestListenerSkipsUnchangedRoleSets(t *testing.T) {
	t.Parallel()

	f := setupListener(t)

	// A nickname change carries the same role set, possibly reordered.
	f.adapter.OnEvent(memberUpdate(listenerGuild, listenerMember, false,
		[]snowflake.ID{debounceVerified, debounceOther},
		[]snowflake.ID{debounceOther, debounceVerified}))

	assert.Zero(t, f.debouncer.Pending())
}

func TestListenerQueuesLinkedMemberOnJoin(t *testing.T) {
	t.Parallel()

	f := setupListener(t)

	join := func(memberID snowflake.ID) *events.GuildMemberJoin {
		return &events.GuildMemberJoin{
			GenericGuildMember: &events.GenericGuildMember{
				GuildID: listenerGuild,
				Member: discord.Member{
					User: discord.User{ID: memberID, Username: "player"},
				},
			},
		}
	}

	f.adapter.OnEvent(join(listenerMember))
	assert.Equal(t, 1, f.queue.Len())

	// Members without a linked player are not queued.
	f.adapter.OnEvent(join(listenerMember + 1))
	assert.Equal(t, 1, f.queue.Len())
}
