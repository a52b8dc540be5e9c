package roles

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// Member is the slice of platform member state the role logic needs.
type Member struct {
	ID       snowflake.ID
	Username string
	RoleIDs  []snowflake.ID
}

// RoleService is the platform surface the role logic drives. Implemented over
// the Discord REST client in production and faked in tests.
type RoleService interface {
	// Member fetches a single guild member.
	Member(ctx context.Context, id snowflake.ID) (Member, error)
	// Members enumerates every guild member.
	Members(ctx context.Context) ([]Member, error)
	// AddRole grants one role.
	AddRole(ctx context.Context, memberID, roleID snowflake.ID) error
	// RemoveRole revokes one role.
	RemoveRole(ctx context.Context, memberID, roleID snowflake.ID) error
	// SetRoles replaces the member's full role set in one edit.
	SetRoles(ctx context.Context, memberID snowflake.ID, roleIDs []snowflake.ID) error
}

// requestTimeout bounds every platform call; the Discord API is treated as a
// blocking I/O boundary.
const requestTimeout = 10 * time.Second

// membersPageSize is the gateway-imposed maximum for member list pages.
const membersPageSize = 1000

// DiscordService implements RoleService against a guild via disgo's REST client.
type DiscordService struct {
	rest    rest.Rest
	guildID snowflake.ID
}

// NewDiscordService creates a RoleService for one guild.
func NewDiscordService(restClient rest.Rest, guildID snowflake.ID) *DiscordService {
	return &DiscordService{
		rest:    restClient,
		guildID: guildID,
	}
}

// Member fetches a single guild member.
func (s *DiscordService) Member(ctx context.Context, id snowflake.ID) (Member, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	member, err := s.rest.GetMember(s.guildID, id, rest.WithCtx(ctx))
	if err != nil {
		return Member{}, fmt.Errorf("failed to get member %d: %w", id, err)
	}

	return fromDiscordMember(*member), nil
}

// Members pages through the full guild member list.
func (s *DiscordService) Members(ctx context.Context) ([]Member, error) {
	var (
		members []Member
		after   snowflake.ID
	)

	for {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		page, err := s.rest.GetMembers(s.guildID, membersPageSize, after, rest.WithCtx(reqCtx))
		cancel()

		if err != nil {
			return nil, fmt.Errorf("failed to list members after %d: %w", after, err)
		}

		for _, m := range page {
			members = append(members, fromDiscordMember(m))
		}

		if len(page) < membersPageSize {
			return members, nil
		}

		after = page[len(page)-1].User.ID
	}
}

// AddRole grants one role.
func (s *DiscordService) AddRole(ctx context.Context, memberID, roleID snowflake.ID) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := s.rest.AddMemberRole(s.guildID, memberID, roleID, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to add role %d to member %d: %w", roleID, memberID, err)
	}

	return nil
}

// RemoveRole revokes one role.
func (s *DiscordService) RemoveRole(ctx context.Context, memberID, roleID snowflake.ID) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := s.rest.RemoveMemberRole(s.guildID, memberID, roleID, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to remove role %d from member %d: %w", roleID, memberID, err)
	}

	return nil
}

// SetRoles replaces the member's full role set in a single member edit, so
// observers see one net change instead of a remove-then-add window.
func (s *DiscordService) SetRoles(ctx context.Context, memberID snowflake.ID, roleIDs []snowflake.ID) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	_, err := s.rest.UpdateMember(s.guildID, memberID, discord.MemberUpdate{
		Roles: &roleIDs,
	}, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to set roles for member %d: %w", memberID, err)
	}

	return nil
}

func fromDiscordMember(m discord.Member) Member {
	return Member{
		ID:       m.User.ID,
		Username: m.User.Username,
		RoleIDs:  m.RoleIDs,
	}
}
