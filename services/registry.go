package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/statestore"
)

// claimTTL bounds how long a crashed process can keep users locked out.
const claimTTL = 6 * time.Hour

// storeTimeout bounds every shared store call made with the registry lock held.
const storeTimeout = 2 * time.Second

// Registry is the process-wide directory of live sessions and the single source of
// truth for what each user currently takes part in. With a shared store, user claims
// are mirrored to it so a user cannot be active on two processes at once. Claims are
// written while mu is held so the local check and the shared claim cannot interleave
// with another registration of the same user; lookups wait for at most storeTimeout.
type Registry struct {
	store      statestore.Store
	instanceID string
	logger     *slog.Logger

	mu             sync.RWMutex
	matches        map[string]*MatchSession
	tournaments    map[string]*TournamentSession
	userMatch      map[models.UserID]string
	userTournament map[models.UserID]string
	queued         map[models.UserID]struct{}
}

// NewRegistry builds a registry. store may be nil for a single-process deployment.
func NewRegistry(store statestore.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:          store,
		instanceID:     uuid.NewString(),
		logger:         logger,
		matches:        make(map[string]*MatchSession),
		tournaments:    make(map[string]*TournamentSession),
		userMatch:      make(map[models.UserID]string),
		userTournament: make(map[models.UserID]string),
		queued:         make(map[models.UserID]struct{}),
	}
}

// InstanceID identifies this process in the shared store.
func (r *Registry) InstanceID() string {
	return r.instanceID
}

// checkFree must be called with mu held. It reports the first registration of userID
// that conflicts; allowTournament and allowQueue name registrations that do not count.
func (r *Registry) checkFree(userID models.UserID, allowTournament string, allowQueue bool) error {
	if id, ok := r.userMatch[userID]; ok {
		return alreadyRegistered(userID, KindMatch, id)
	}
	if id, ok := r.userTournament[userID]; ok && id != allowTournament {
		return alreadyRegistered(userID, KindTournament, id)
	}
	if _, ok := r.queued[userID]; ok && !allowQueue {
		return alreadyRegistered(userID, KindQueue, "")
	}
	return nil
}

// active must be called with mu held.
func (r *Registry) active(userID models.UserID) bool {
	if _, ok := r.userMatch[userID]; ok {
		return true
	}
	if _, ok := r.userTournament[userID]; ok {
		return true
	}
	_, ok := r.queued[userID]
	return ok
}

func (r *Registry) claimValue(kind RegistrationKind, sessionID string) string {
	return strings.Join([]string{r.instanceID, string(kind), sessionID}, "|")
}

// claim must be called with mu held, before userID becomes active locally.
func (r *Registry) claim(ctx context.Context, userID models.UserID, kind RegistrationKind, sessionID string) error {
	if r.store == nil || r.active(userID) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	key := statestore.UserKey(userID.String())
	ok, err := r.store.SetNX(ctx, key, r.claimValue(kind, sessionID), claimTTL)
	if err != nil {
		return fmt.Errorf("failed to claim user %s: %w", userID, err)
	}
	if ok {
		return nil
	}

	holder, err := r.store.Get(ctx, key)
	if errors.Is(err, statestore.ErrNotFound) {
		// Released between the two calls; one retry settles it.
		ok, err = r.store.SetNX(ctx, key, r.claimValue(kind, sessionID), claimTTL)
		if err != nil {
			return fmt.Errorf("failed to claim user %s: %w", userID, err)
		}
		if ok {
			return nil
		}
		holder, err = r.store.Get(ctx, key)
	}
	if err != nil {
		return fmt.Errorf("failed to read claim of user %s: %w", userID, err)
	}
	parts := strings.SplitN(holder, "|", 3)
	if len(parts) == 3 {
		return alreadyRegistered(userID, RegistrationKind(parts[1]), parts[2])
	}
	return alreadyRegistered(userID, KindMatch, "")
}

// releaseClaim must be called with mu held, after userID stopped being active locally.
func (r *Registry) releaseClaim(ctx context.Context, userID models.UserID) {
	if r.store == nil || r.active(userID) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	key := statestore.UserKey(userID.String())
	holder, err := r.store.Get(ctx, key)
	if errors.Is(err, statestore.ErrNotFound) {
		return
	}
	if err == nil && strings.HasPrefix(holder, r.instanceID+"|") {
		_, err = r.store.CompareAndDelete(ctx, key, holder)
	}
	if err != nil {
		r.logger.Warn("Failed to release user claim",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
	}
}

// ReserveQueue marks userID as waiting in the matchmaking queue.
func (r *Registry) ReserveQueue(ctx context.Context, userID models.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkFree(userID, "", false); err != nil {
		return err
	}
	if err := r.claim(ctx, userID, KindQueue, ""); err != nil {
		return err
	}
	r.queued[userID] = struct{}{}
	return nil
}

func (r *Registry) ReleaseQueue(ctx context.Context, userID models.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queued[userID]; !ok {
		return
	}
	delete(r.queued, userID)
	r.releaseClaim(ctx, userID)
}

// AddMatch registers a match and its users atomically. Users may only be in the
// tournament the match belongs to; with fromQueue their queue reservation is taken over.
func (r *Registry) AddMatch(ctx context.Context, m *MatchSession, fromQueue bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[m.ID()]; ok {
		return fmt.Errorf("match %s is already registered", m.ID())
	}
	users := m.Users()
	for _, u := range users {
		if err := r.checkFree(u, m.TournamentID(), fromQueue); err != nil {
			return err
		}
	}

	claimed := make([]models.UserID, 0, len(users))
	for _, u := range users {
		if err := r.claim(ctx, u, KindMatch, m.ID()); err != nil {
			for _, c := range claimed {
				r.releaseClaim(ctx, c)
			}
			return err
		}
		claimed = append(claimed, u)
	}

	r.matches[m.ID()] = m
	for _, u := range users {
		r.userMatch[u] = m.ID()
		delete(r.queued, u)
	}
	return nil
}

func (r *Registry) RemoveMatch(ctx context.Context, matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return
	}
	delete(r.matches, matchID)
	for _, u := range m.Users() {
		if r.userMatch[u] == matchID {
			delete(r.userMatch, u)
			r.releaseClaim(ctx, u)
		}
	}
}

func (r *Registry) GetMatch(matchID string) (*MatchSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[matchID]
	return m, ok
}

// AddTournament registers a tournament together with its owner as first member.
func (r *Registry) AddTournament(ctx context.Context, t *TournamentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[t.ID()]; ok {
		return fmt.Errorf("tournament %s is already registered", t.ID())
	}
	owner := t.Owner()
	if err := r.checkFree(owner, "", false); err != nil {
		return err
	}
	if err := r.claim(ctx, owner, KindTournament, t.ID()); err != nil {
		return err
	}
	r.tournaments[t.ID()] = t
	r.userTournament[owner] = t.ID()
	return nil
}

func (r *Registry) RemoveTournament(ctx context.Context, tournamentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[tournamentID]; !ok {
		return
	}
	delete(r.tournaments, tournamentID)
	for u, id := range r.userTournament {
		if id == tournamentID {
			delete(r.userTournament, u)
			r.releaseClaim(ctx, u)
		}
	}
}

func (r *Registry) GetTournament(tournamentID string) (*TournamentSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tournaments[tournamentID]
	return t, ok
}

// Tournaments lists the registered tournaments ordered by creation time.
func (r *Registry) Tournaments() []*TournamentSession {
	r.mu.RLock()
	list := make([]*TournamentSession, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		list = append(list, t)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt().Equal(list[j].CreatedAt()) {
			return list[i].ID() < list[j].ID()
		}
		return list[i].CreatedAt().Before(list[j].CreatedAt())
	})
	return list
}

// JoinTournament records userID as a member of a registered tournament.
func (r *Registry) JoinTournament(ctx context.Context, tournamentID string, userID models.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[tournamentID]; !ok {
		return ErrTournamentNotFound
	}
	if err := r.checkFree(userID, "", false); err != nil {
		return err
	}
	if err := r.claim(ctx, userID, KindTournament, tournamentID); err != nil {
		return err
	}
	r.userTournament[userID] = tournamentID
	return nil
}

func (r *Registry) LeaveTournament(ctx context.Context, tournamentID string, userID models.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userTournament[userID] != tournamentID {
		return
	}
	delete(r.userTournament, userID)
	r.releaseClaim(ctx, userID)
}

func (r *Registry) IsUserInAnyMatch(userID models.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.userMatch[userID]
	return ok
}

func (r *Registry) IsUserInAnyTournament(userID models.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.userTournament[userID]
	return ok
}

func (r *Registry) IsUserQueued(userID models.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.queued[userID]
	return ok
}

func (r *Registry) GetUserMatchID(userID models.UserID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.userMatch[userID]
	return id, ok
}

func (r *Registry) GetUserTournamentID(userID models.UserID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.userTournament[userID]
	return id, ok
}

// Matches returns the live matches ordered by id.
func (r *Registry) Matches() []*MatchSession {
	r.mu.RLock()
	list := make([]*MatchSession, 0, len(r.matches))
	for _, m := range r.matches {
		list = append(list, m)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}
