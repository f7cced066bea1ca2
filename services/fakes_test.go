package services

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/repositories"
)

// In-memory fakes for the repository interfaces. They mimic the SQL
// implementations' behavior, including conditional updates that report
// not-found when the row is in the wrong state.

type fakeTx struct{ fail error }

func (f *fakeTx) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	if f.fail != nil {
		return f.fail
	}
	return fn(nil)
}

type recordingBroadcaster struct {
	events []string
}

func (b *recordingBroadcaster) Broadcast(event string, payload any) {
	b.events = append(b.events, event)
}

type fakeProfileRepo struct {
	profiles map[int64]*models.Profile
	history  []models.UsernameChange
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[int64]*models.Profile)}
}

func (r *fakeProfileRepo) add(p models.Profile) *models.Profile {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Language == "" {
		p.Language = "FR"
	}
	if p.ApprovalStatus == "" {
		p.ApprovalStatus = models.StatusPending
	}
	cp := p
	r.profiles[p.DiscordID] = &cp
	return &cp
}

func (r *fakeProfileRepo) Create(ctx context.Context, profile *models.Profile) error {
	profile.CreatedAt = time.Now().UTC()
	cp := *profile
	r.profiles[profile.DiscordID] = &cp
	return nil
}

func (r *fakeProfileRepo) GetByID(ctx context.Context, discordID int64) (*models.Profile, error) {
	p, ok := r.profiles[discordID]
	if !ok {
		return nil, repositories.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProfileRepo) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	for _, p := range r.profiles {
		if strings.EqualFold(p.Username, username) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrProfileNotFound
}

func (r *fakeProfileRepo) UpdateIdentity(ctx context.Context, exec repositories.SQLExecutor, discordID int64, username, displayName string) error {
	p, ok := r.profiles[discordID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	if p.Username != username {
		r.history = append(r.history, models.UsernameChange{
			DiscordID: discordID, Username: p.Username, DisplayName: p.DisplayName,
			ChangedAt: time.Now().UTC(),
		})
	}
	p.Username = username
	p.DisplayName = displayName
	return nil
}

func (r *fakeProfileRepo) Touch(ctx context.Context, discordID int64, at time.Time) error {
	p, ok := r.profiles[discordID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	p.LastConnection = &at
	return nil
}

func (r *fakeProfileRepo) UpdateLanguage(ctx context.Context, discordID int64, language string) error {
	p, ok := r.profiles[discordID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	p.Language = language
	return nil
}

func (r *fakeProfileRepo) SetCharterAccepted(ctx context.Context, discordID int64, accepted bool) error {
	p, ok := r.profiles[discordID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	p.CharterAccepted = accepted
	return nil
}

func (r *fakeProfileRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, discordID int64, status models.ApprovalStatus) error {
	p, ok := r.profiles[discordID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	p.ApprovalStatus = status
	return nil
}

func (r *fakeProfileRepo) ResetForReregistration(ctx context.Context, exec repositories.SQLExecutor, discordID int64) error {
	p, ok := r.profiles[discordID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	p.ApprovalStatus = models.StatusPending
	p.CharterAccepted = false
	return nil
}

func (r *fakeProfileRepo) SetLocation(ctx context.Context, discordID int64, location, display string, lat, lon float64) error {
	p, ok := r.profiles[discordID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	p.Location = &location
	p.LocationDisplay = &display
	p.Latitude = &lat
	p.Longitude = &lon
	return nil
}

func (r *fakeProfileRepo) ClearLocation(ctx context.Context, exec repositories.SQLExecutor, discordID int64) error {
	p, ok := r.profiles[discordID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	p.Location, p.LocationDisplay, p.Latitude, p.Longitude = nil, nil, nil, nil
	return nil
}

func (r *fakeProfileRepo) ListPending(ctx context.Context) ([]models.Profile, error) {
	var out []models.Profile
	for _, p := range r.profiles {
		if p.ApprovalStatus == models.StatusPending && p.CharterAccepted {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeProfileRepo) ListVisible(ctx context.Context) ([]models.Profile, error) {
	var out []models.Profile
	for _, p := range r.profiles {
		if p.ApprovalStatus != models.StatusDeleted {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeProfileRepo) ListWithLocation(ctx context.Context) ([]models.Profile, error) {
	var out []models.Profile
	for _, p := range r.profiles {
		if p.Latitude != nil && p.Longitude != nil && p.ApprovalStatus != models.StatusDeleted {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeProfileRepo) UsernameHistory(ctx context.Context, discordID int64) ([]models.UsernameChange, error) {
	var out []models.UsernameChange
	for _, c := range r.history {
		if c.DiscordID == discordID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeProfileRepo) SoftDelete(ctx context.Context, exec repositories.SQLExecutor, discordID int64) error {
	p, ok := r.profiles[discordID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	p.ApprovalStatus = models.StatusDeleted
	p.Username = ""
	p.DisplayName = ""
	p.CharterAccepted = false
	p.Language = "FR"
	p.Location, p.LocationDisplay, p.Latitude, p.Longitude = nil, nil, nil, nil
	kept := r.history[:0]
	for _, c := range r.history {
		if c.DiscordID != discordID {
			kept = append(kept, c)
		}
	}
	r.history = kept
	return nil
}

type fakePlayerRepo struct {
	nextID  int
	players map[int]*models.Player
	// taken simulates the unique (team_id, lower(name)) index across members.
	taken map[string]int64
}

func newFakePlayerRepo() *fakePlayerRepo {
	return &fakePlayerRepo{players: make(map[int]*models.Player), taken: make(map[string]int64), nextID: 1}
}

func takenKey(teamID int, name string) string {
	return strings.ToLower(name) + "@" + strconv.Itoa(teamID)
}

func (r *fakePlayerRepo) ReplaceTeamRoster(ctx context.Context, exec repositories.SQLExecutor, memberID int64, teamID int, names []string) ([]models.Player, error) {
	// Check conflicts against other members before mutating anything, the
	// way the real implementation's transaction leaves the roster intact.
	for _, name := range names {
		if owner, ok := r.taken[takenKey(teamID, name)]; ok && owner != memberID {
			return nil, repositories.ErrPlayerNameConflict
		}
	}
	for id, p := range r.players {
		if p.MemberID == memberID && p.TeamID == teamID {
			delete(r.taken, takenKey(teamID, p.PlayerName))
			delete(r.players, id)
		}
	}
	out := make([]models.Player, 0, len(names))
	for _, name := range names {
		p := &models.Player{
			ID: r.nextID, MemberID: memberID, TeamID: teamID,
			PlayerName: name, CreatedAt: time.Now().UTC(),
			TeamName: teamName(teamID),
		}
		r.nextID++
		r.players[p.ID] = p
		r.taken[takenKey(teamID, name)] = memberID
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePlayerRepo) ListByMember(ctx context.Context, memberID int64) ([]models.Player, error) {
	var out []models.Player
	for _, p := range r.players {
		if p.MemberID == memberID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePlayerRepo) ListByMembers(ctx context.Context, memberIDs []int64) (map[int64][]models.Player, error) {
	out := make(map[int64][]models.Player)
	for _, id := range memberIDs {
		players, _ := r.ListByMember(ctx, id)
		if len(players) > 0 {
			out[id] = players
		}
	}
	return out, nil
}

func (r *fakePlayerRepo) GetByID(ctx context.Context, id int) (*models.Player, error) {
	p, ok := r.players[id]
	if !ok {
		return nil, repositories.ErrPlayerNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePlayerRepo) FindByName(ctx context.Context, memberID int64, name string) (*models.Player, error) {
	for _, p := range r.players {
		if p.MemberID == memberID && strings.EqualFold(p.PlayerName, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrPlayerNotFound
}

func (r *fakePlayerRepo) DeleteAllForMember(ctx context.Context, exec repositories.SQLExecutor, memberID int64) error {
	for id, p := range r.players {
		if p.MemberID == memberID {
			delete(r.taken, takenKey(p.TeamID, p.PlayerName))
			delete(r.players, id)
		}
	}
	return nil
}

type fakeTeamRepo struct{}

func teamName(id int) string {
	if id == models.Team2ID {
		return "This Is PSG 2"
	}
	return "This Is PSG"
}

func (r *fakeTeamRepo) GetByID(ctx context.Context, id int) (*models.Team, error) {
	if id != models.Team1ID && id != models.Team2ID {
		return nil, repositories.ErrTeamNotFound
	}
	return &models.Team{ID: id, Name: teamName(id)}, nil
}

func (r *fakeTeamRepo) List(ctx context.Context) ([]models.Team, error) {
	return []models.Team{
		{ID: models.Team1ID, Name: teamName(models.Team1ID)},
		{ID: models.Team2ID, Name: teamName(models.Team2ID)},
	}, nil
}

type fakeAuditRepo struct {
	entries []models.AuditEntry
}

func (r *fakeAuditRepo) Insert(ctx context.Context, exec repositories.SQLExecutor, entry *models.AuditEntry) error {
	entry.ID = len(r.entries) + 1
	entry.CreatedAt = time.Now().UTC()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]models.AuditEntry, limit)
	copy(out, r.entries[len(r.entries)-limit:])
	return out, nil
}

func (r *fakeAuditRepo) DeleteForTarget(ctx context.Context, exec repositories.SQLExecutor, targetID int64) error {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.TargetID == nil || *e.TargetID != targetID {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	return nil
}

func (r *fakeAuditRepo) ListForTarget(ctx context.Context, targetUsername string) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	for _, e := range r.entries {
		if strings.EqualFold(e.TargetUsername, targetUsername) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeCaptureRepo struct {
	nextID   int
	captures map[int]*models.Capture
}

func newFakeCaptureRepo() *fakeCaptureRepo {
	return &fakeCaptureRepo{captures: make(map[int]*models.Capture), nextID: 1}
}

func (r *fakeCaptureRepo) Create(ctx context.Context, capture *models.Capture) error {
	capture.ID = r.nextID
	r.nextID++
	capture.Status = models.CapturePending
	capture.SubmittedAt = time.Now().UTC()
	cp := *capture
	r.captures[capture.ID] = &cp
	return nil
}

func (r *fakeCaptureRepo) GetByID(ctx context.Context, id int) (*models.Capture, error) {
	c, ok := r.captures[id]
	if !ok {
		return nil, repositories.ErrCaptureNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCaptureRepo) ClaimNextPending(ctx context.Context) (*models.Capture, error) {
	var oldest *models.Capture
	for _, c := range r.captures {
		if c.Status != models.CapturePending {
			continue
		}
		if oldest == nil || c.SubmittedAt.Before(oldest.SubmittedAt) || (c.SubmittedAt.Equal(oldest.SubmittedAt) && c.ID < oldest.ID) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil, repositories.ErrCaptureNotFound
	}
	oldest.Status = models.CaptureProcessing
	cp := *oldest
	return &cp, nil
}

func (r *fakeCaptureRepo) SetCompleted(ctx context.Context, id int, result []byte) error {
	c, ok := r.captures[id]
	if !ok || c.Status != models.CaptureProcessing {
		return repositories.ErrCaptureNotFound
	}
	now := time.Now().UTC()
	c.Status = models.CaptureCompleted
	c.Result = json.RawMessage(result)
	c.ProcessedAt = &now
	return nil
}

func (r *fakeCaptureRepo) SetFailed(ctx context.Context, id int, reason string) error {
	c, ok := r.captures[id]
	if !ok || (c.Status != models.CapturePending && c.Status != models.CaptureProcessing) {
		return repositories.ErrCaptureNotFound
	}
	now := time.Now().UTC()
	c.Status = models.CaptureFailed
	c.ErrorMessage = &reason
	c.ProcessedAt = &now
	return nil
}

func (r *fakeCaptureRepo) SetDecision(ctx context.Context, exec repositories.SQLExecutor, id int, status models.CaptureStatus) error {
	c, ok := r.captures[id]
	if !ok || c.Status != models.CaptureCompleted {
		return repositories.ErrCaptureNotFound
	}
	now := time.Now().UTC()
	c.Status = status
	c.ValidatedAt = &now
	return nil
}

func (r *fakeCaptureRepo) ListCompletedForMember(ctx context.Context, memberID int64) ([]models.Capture, error) {
	var out []models.Capture
	for _, c := range r.captures {
		if c.MemberID == memberID && c.Status == models.CaptureCompleted {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCaptureRepo) CountByStatus(ctx context.Context) (map[models.CaptureStatus]int, error) {
	out := make(map[models.CaptureStatus]int)
	for _, c := range r.captures {
		out[c.Status]++
	}
	return out, nil
}

type fakeStatsRepo struct {
	stats []models.PlayerStats
}

func (r *fakeStatsRepo) Insert(ctx context.Context, exec repositories.SQLExecutor, stats *models.PlayerStats) error {
	stats.ID = len(r.stats) + 1
	stats.RecordedAt = time.Now().UTC()
	r.stats = append(r.stats, *stats)
	return nil
}

func (r *fakeStatsRepo) ListByPlayer(ctx context.Context, playerID int) ([]models.PlayerStats, error) {
	var out []models.PlayerStats
	for _, s := range r.stats {
		if s.PlayerID == playerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeStatsRepo) LatestByPlayer(ctx context.Context, playerID int) (*models.PlayerStats, error) {
	all, _ := r.ListByPlayer(ctx, playerID)
	if len(all) == 0 {
		return nil, nil
	}
	latest := all[len(all)-1]
	return &latest, nil
}
