package supervisor

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/database/models"
	"github.com/towertools/tiersync/internal/roles"
)

const lookupTimeout = 5 * time.Second

// Listener translates gateway member events into debouncer observations and
// queue items. Notifications caused by this system's own writes are dropped
// via the guard before they reach the debouncer.
type Listener struct {
	guildID   snowflake.ID
	queue     *Queue
	debouncer *Debouncer
	guard     *roles.Guard
	identity  IdentityResolver
	ready     *Readiness
	logger    *zap.Logger
}

// NewListener creates the gateway event listener.
func NewListener(
	guildID snowflake.ID,
	queue *Queue,
	debouncer *Debouncer,
	guard *roles.Guard,
	identity IdentityResolver,
	ready *Readiness,
	logger *zap.Logger,
) *Listener {
	return &Listener{
		guildID:   guildID,
		queue:     queue,
		debouncer: debouncer,
		guard:     guard,
		identity:  identity,
		ready:     ready,
		logger:    logger.Named("events"),
	}
}

// Adapter returns the listener in the form the gateway client accepts.
func (l *Listener) Adapter() bot.EventListener {
	return &events.ListenerAdapter{
		OnGuildMemberJoin:   l.onMemberJoin,
		OnGuildMemberUpdate: l.onMemberUpdate,
	}
}

// onMemberJoin queues an update for joining members that are already linked
// to an approved player, so returning players get their roles back without
// waiting for the next reconciliation pass.
func (l *Listener) onMemberJoin(e *events.GuildMemberJoin) {
	if e.GuildID != l.guildID || e.Member.User.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	if !l.ready.Check(ctx) {
		return
	}

	memberID := e.Member.User.ID

	if _, err := l.identity.GetByDiscordID(ctx, uint64(memberID)); err != nil {
		if !errors.Is(err, models.ErrPlayerNotFound) {
			l.logger.Error("Failed to look up joining member",
				zap.Uint64("memberID", uint64(memberID)),
				zap.Error(err))
		}

		return
	}

	item := Item{
		MemberID:   memberID,
		Username:   e.Member.User.Username,
		Trigger:    "member join",
		EnqueuedAt: time.Now(),
	}
	if err := l.queue.Enqueue(item); err != nil {
		l.logger.Warn("Failed to queue joining member", zap.Error(err))
	}
}

// onMemberUpdate feeds role changes into the debouncer.
func (l *Listener) onMemberUpdate(e *events.GuildMemberUpdate) {
	if e.GuildID != l.guildID || e.Member.User.Bot {
		return
	}

	memberID := e.Member.User.ID

	if l.guard.Contains(memberID) {
		l.logger.Debug("Dropping self-caused role change",
			zap.Uint64("memberID", uint64(memberID)))

		return
	}

	before := e.OldMember.RoleIDs
	after := e.Member.RoleIDs

	if sameRoleSet(before, after) {
		return
	}

	l.debouncer.Observe(memberID, e.Member.User.Username, before, after)
}

func sameRoleSet(a, b []snowflake.ID) bool {
	if len(a) != len(b) {
		return false
	}

	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)

	return slices.Equal(as, bs)
}
