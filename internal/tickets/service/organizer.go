package tickets

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
	"ms-checkin/internal/utils"
)

type OrganizerStore interface {
	GetTeamByID(ctx context.Context, id string) (*models.Team, error)
	GetTeamMembers(ctx context.Context, teamID string) ([]models.TeamMember, error)
}

// AddressSetCache caches the wallet plus member addresses of a team.
type AddressSetCache interface {
	GetTeamAddresses(ctx context.Context, teamID string) ([]string, bool, error)
	SetTeamAddresses(ctx context.Context, teamID string, addresses []string) error
	InvalidateTeam(ctx context.Context, teamID string) error
}

// AddressSet holds normalized addresses.
type AddressSet map[string]struct{}

func NewAddressSet(addresses ...string) AddressSet {
	set := make(AddressSet, len(addresses))
	set.Add(addresses...)
	return set
}

func (a AddressSet) Add(addresses ...string) {
	for _, addr := range addresses {
		if n := utils.NormalizeAddress(addr); n != "" {
			a[n] = struct{}{}
		}
	}
}

func (a AddressSet) Contains(address string) bool {
	_, ok := a[utils.NormalizeAddress(address)]
	return ok
}

func (a AddressSet) ContainsAny(addresses []string) bool {
	for _, addr := range addresses {
		if a.Contains(addr) {
			return true
		}
	}
	return false
}

func (a AddressSet) Slice() []string {
	out := make([]string, 0, len(a))
	for addr := range a {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

type OrganizerResolver struct {
	Store  OrganizerStore
	Cache  AddressSetCache
	Logger *logger.Logger
}

func NewOrganizerResolver(store OrganizerStore, cache AddressSetCache, log *logger.Logger) *OrganizerResolver {
	return &OrganizerResolver{Store: store, Cache: cache, Logger: log}
}

// ResolveAuthorizedAddresses returns the addresses allowed to check in tickets
// of the event: its creator, plus the owning team's wallet and members.
// Admin status is not an address and is checked separately.
func (r *OrganizerResolver) ResolveAuthorizedAddresses(ctx context.Context, event *models.Event) (AddressSet, error) {
	set := NewAddressSet(event.CreatorAddress)
	if event.TeamID == "" {
		return set, nil
	}

	teamAddresses, err := r.teamAddresses(ctx, event.TeamID)
	if err != nil {
		return nil, err
	}
	set.Add(teamAddresses...)
	return set, nil
}

// CanManageEvent reports whether the identity is an admin or one of the
// event's organizer addresses.
func (r *OrganizerResolver) CanManageEvent(ctx context.Context, event *models.Event, identity models.Identity) (bool, error) {
	if identity.Admin {
		return true, nil
	}
	set, err := r.ResolveAuthorizedAddresses(ctx, event)
	if err != nil {
		return false, err
	}
	return set.ContainsAny(identity.Addresses), nil
}

// InvalidateTeam drops the cached address set of a team.
func (r *OrganizerResolver) InvalidateTeam(ctx context.Context, teamID string) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.InvalidateTeam(ctx, teamID); err != nil {
		r.Logger.Warn("CACHE", fmt.Sprintf("Failed to invalidate organizer cache of team %s: %v", teamID, err))
	}
}

func (r *OrganizerResolver) teamAddresses(ctx context.Context, teamID string) ([]string, error) {
	if r.Cache != nil {
		cached, ok, err := r.Cache.GetTeamAddresses(ctx, teamID)
		if err != nil {
			r.Logger.Warn("CACHE", fmt.Sprintf("organizer cache read for team %s failed, using store: %v", teamID, err))
		} else if ok {
			return cached, nil
		}
	}

	team, err := r.Store.GetTeamByID(ctx, teamID)
	if errors.Is(err, db.ErrNotFound) {
		// Unknown team: only the creator remains authorized.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load team %s: %w", teamID, err)
	}
	members, err := r.Store.GetTeamMembers(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("load members of team %s: %w", teamID, err)
	}

	addresses := []string{team.WalletAddress}
	for _, m := range members {
		addresses = append(addresses, m.Address)
	}
	addresses = utils.NormalizeAddresses(addresses)

	if r.Cache != nil {
		if err := r.Cache.SetTeamAddresses(ctx, teamID, addresses); err != nil {
			r.Logger.Warn("CACHE", fmt.Sprintf("organizer cache write for team %s failed: %v", teamID, err))
		}
	}
	return addresses, nil
}
