package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/repositories"
)

// fakeSession records everything a command sends through the chat platform.
type fakeSession struct {
	mu           sync.Mutex
	dms          map[int64][]string
	channelSends map[string][]string
	rolesAdded   []string
	rolesRemoved []string
	downloads    map[string][]byte
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		dms:          make(map[int64][]string),
		channelSends: make(map[string][]string),
		downloads:    make(map[string][]byte),
	}
}

func (s *fakeSession) SendDM(ctx context.Context, userID int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dms[userID] = append(s.dms[userID], content)
	return nil
}

func (s *fakeSession) SendChannel(ctx context.Context, channelID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelSends[channelID] = append(s.channelSends[channelID], content)
	return nil
}

func (s *fakeSession) AddRole(ctx context.Context, userID int64, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolesAdded = append(s.rolesAdded, roleID)
	return nil
}

func (s *fakeSession) RemoveRole(ctx context.Context, userID int64, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolesRemoved = append(s.rolesRemoved, roleID)
	return nil
}

func (s *fakeSession) ResolveMember(ctx context.Context, query string) (int64, string, string, error) {
	return 0, "", "", errors.New("not implemented")
}

func (s *fakeSession) Download(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if body, ok := s.downloads[url]; ok {
		return body, nil
	}
	return nil, errors.New("unknown url")
}

func (s *fakeSession) lastDM(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.dms[userID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (s *fakeSession) dmCount(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dms[userID])
}

type memTx struct{}

func (memTx) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

// memProfiles is a map-backed ProfileRepository for flow tests. It is
// mutex-protected so concurrent flow replies can hit it from several
// goroutines, like the real pool-backed repository.
type memProfiles struct {
	mu      sync.Mutex
	rows    map[int64]*models.Profile
	history []models.UsernameChange
}

func newMemProfiles() *memProfiles {
	return &memProfiles{rows: make(map[int64]*models.Profile)}
}

func (r *memProfiles) get(id int64) (*models.Profile, error) {
	p, ok := r.rows[id]
	if !ok {
		return nil, repositories.ErrProfileNotFound
	}
	return p, nil
}

func (r *memProfiles) Create(ctx context.Context, p *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.CreatedAt = time.Now().UTC()
	cp := *p
	r.rows[p.DiscordID] = &cp
	return nil
}

func (r *memProfiles) GetByID(ctx context.Context, id int64) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (r *memProfiles) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if strings.EqualFold(p.Username, username) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrProfileNotFound
}

func (r *memProfiles) UpdateIdentity(ctx context.Context, exec repositories.SQLExecutor, id int64, username, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return err
	}
	if p.Username != username {
		r.history = append(r.history, models.UsernameChange{DiscordID: id, Username: p.Username})
	}
	p.Username, p.DisplayName = username, displayName
	return nil
}

func (r *memProfiles) Touch(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.LastConnection = &at
	return nil
}

func (r *memProfiles) UpdateLanguage(ctx context.Context, id int64, language string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.Language = language
	return nil
}

func (r *memProfiles) SetCharterAccepted(ctx context.Context, id int64, accepted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.CharterAccepted = accepted
	return nil
}

func (r *memProfiles) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int64, status models.ApprovalStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.ApprovalStatus = status
	return nil
}

func (r *memProfiles) ResetForReregistration(ctx context.Context, exec repositories.SQLExecutor, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.ApprovalStatus = models.StatusPending
	p.CharterAccepted = false
	return nil
}

func (r *memProfiles) SetLocation(ctx context.Context, id int64, location, display string, lat, lon float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.Location, p.LocationDisplay, p.Latitude, p.Longitude = &location, &display, &lat, &lon
	return nil
}

func (r *memProfiles) ClearLocation(ctx context.Context, exec repositories.SQLExecutor, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.Location, p.LocationDisplay, p.Latitude, p.Longitude = nil, nil, nil, nil
	return nil
}

func (r *memProfiles) ListPending(ctx context.Context) ([]models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Profile
	for _, p := range r.rows {
		if p.ApprovalStatus == models.StatusPending && p.CharterAccepted {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProfiles) ListVisible(ctx context.Context) ([]models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Profile
	for _, p := range r.rows {
		if p.ApprovalStatus != models.StatusDeleted {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProfiles) ListWithLocation(ctx context.Context) ([]models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Profile
	for _, p := range r.rows {
		if p.Latitude != nil && p.ApprovalStatus != models.StatusDeleted {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProfiles) UsernameHistory(ctx context.Context, id int64) ([]models.UsernameChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UsernameChange
	for _, c := range r.history {
		if c.DiscordID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memProfiles) SoftDelete(ctx context.Context, exec repositories.SQLExecutor, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.get(id)
	if err != nil {
		return err
	}
	p.ApprovalStatus = models.StatusDeleted
	p.Username = ""
	p.DisplayName = ""
	p.CharterAccepted = false
	p.Location, p.LocationDisplay, p.Latitude, p.Longitude = nil, nil, nil, nil
	kept := r.history[:0]
	for _, c := range r.history {
		if c.DiscordID != id {
			kept = append(kept, c)
		}
	}
	r.history = kept
	return nil
}

// memPlayers is a slice-backed PlayerRepository.
type memPlayers struct {
	nextID int
	rows   []*models.Player
}

func newMemPlayers() *memPlayers { return &memPlayers{nextID: 1} }

func (r *memPlayers) ReplaceTeamRoster(ctx context.Context, exec repositories.SQLExecutor, memberID int64, teamID int, names []string) ([]models.Player, error) {
	for _, name := range names {
		for _, p := range r.rows {
			if p.TeamID == teamID && p.MemberID != memberID && strings.EqualFold(p.PlayerName, name) {
				return nil, repositories.ErrPlayerNameConflict
			}
		}
	}
	kept := r.rows[:0]
	for _, p := range r.rows {
		if !(p.MemberID == memberID && p.TeamID == teamID) {
			kept = append(kept, p)
		}
	}
	r.rows = kept

	out := make([]models.Player, 0, len(names))
	for _, name := range names {
		p := &models.Player{
			ID: r.nextID, MemberID: memberID, TeamID: teamID,
			PlayerName: name, TeamName: memTeamName(teamID),
		}
		r.nextID++
		r.rows = append(r.rows, p)
		out = append(out, *p)
	}
	return out, nil
}

func (r *memPlayers) ListByMember(ctx context.Context, memberID int64) ([]models.Player, error) {
	var out []models.Player
	for _, p := range r.rows {
		if p.MemberID == memberID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memPlayers) ListByMembers(ctx context.Context, memberIDs []int64) (map[int64][]models.Player, error) {
	out := make(map[int64][]models.Player)
	for _, id := range memberIDs {
		players, _ := r.ListByMember(ctx, id)
		if len(players) > 0 {
			out[id] = players
		}
	}
	return out, nil
}

func (r *memPlayers) GetByID(ctx context.Context, id int) (*models.Player, error) {
	for _, p := range r.rows {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrPlayerNotFound
}

func (r *memPlayers) FindByName(ctx context.Context, memberID int64, name string) (*models.Player, error) {
	for _, p := range r.rows {
		if p.MemberID == memberID && strings.EqualFold(p.PlayerName, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrPlayerNotFound
}

func (r *memPlayers) DeleteAllForMember(ctx context.Context, exec repositories.SQLExecutor, memberID int64) error {
	kept := r.rows[:0]
	for _, p := range r.rows {
		if p.MemberID != memberID {
			kept = append(kept, p)
		}
	}
	r.rows = kept
	return nil
}

type memTeams struct{}

func memTeamName(id int) string {
	if id == models.Team2ID {
		return "This Is PSG 2"
	}
	return "This Is PSG"
}

func (memTeams) GetByID(ctx context.Context, id int) (*models.Team, error) {
	if id != models.Team1ID && id != models.Team2ID {
		return nil, repositories.ErrTeamNotFound
	}
	return &models.Team{ID: id, Name: memTeamName(id)}, nil
}

func (memTeams) List(ctx context.Context) ([]models.Team, error) {
	return []models.Team{
		{ID: models.Team1ID, Name: memTeamName(models.Team1ID)},
		{ID: models.Team2ID, Name: memTeamName(models.Team2ID)},
	}, nil
}

type memAudit struct {
	entries []models.AuditEntry
}

func (r *memAudit) Insert(ctx context.Context, exec repositories.SQLExecutor, entry *models.AuditEntry) error {
	entry.ID = len(r.entries) + 1
	entry.CreatedAt = time.Now().UTC()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memAudit) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return r.entries, nil
}

func (r *memAudit) DeleteForTarget(ctx context.Context, exec repositories.SQLExecutor, targetID int64) error {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.TargetID == nil || *e.TargetID != targetID {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	return nil
}

func (r *memAudit) ListForTarget(ctx context.Context, targetUsername string) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	for _, e := range r.entries {
		if strings.EqualFold(e.TargetUsername, targetUsername) {
			out = append(out, e)
		}
	}
	return out, nil
}
