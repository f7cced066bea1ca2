package mapgen

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/repositories"
	"github.com/thisispsg/community-bot/storage"
)

type fakeLister struct {
	profiles []models.Profile
}

func (l *fakeLister) ListWithLocation(ctx context.Context) ([]models.Profile, error) {
	return l.profiles, nil
}

type fakePlayers struct {
	rosters map[int64][]models.Player
}

func (f *fakePlayers) ListByMembers(ctx context.Context, memberIDs []int64) (map[int64][]models.Player, error) {
	return f.rosters, nil
}

func (f *fakePlayers) ReplaceTeamRoster(ctx context.Context, exec repositories.SQLExecutor, memberID int64, teamID int, names []string) ([]models.Player, error) {
	return nil, nil
}
func (f *fakePlayers) ListByMember(ctx context.Context, memberID int64) ([]models.Player, error) {
	return nil, nil
}
func (f *fakePlayers) GetByID(ctx context.Context, id int) (*models.Player, error) {
	return nil, repositories.ErrPlayerNotFound
}
func (f *fakePlayers) FindByName(ctx context.Context, memberID int64, name string) (*models.Player, error) {
	return nil, repositories.ErrPlayerNotFound
}
func (f *fakePlayers) DeleteAllForMember(ctx context.Context, exec repositories.SQLExecutor, memberID int64) error {
	return nil
}

type fakeUploader struct {
	key         string
	contentType string
	body        []byte
}

func (u *fakeUploader) Upload(ctx context.Context, key, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.key, u.contentType, u.body = key, contentType, body
	return &storage.UploadResult{Key: key, Location: "https://cdn.example.org/" + key}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error { return nil }

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.example.org/" + key
}

func located(id int64, name, display string, lat, lon float64) models.Profile {
	return models.Profile{
		DiscordID:       id,
		Username:        name,
		DisplayName:     name,
		LocationDisplay: &display,
		Latitude:        &lat,
		Longitude:       &lon,
	}
}

func TestRender(t *testing.T) {
	address := "12 rue des Lices, Rennes"
	profile := located(1, "alice", "Bretagne, France", 48.11, -1.68)
	profile.Location = &address

	lister := &fakeLister{profiles: []models.Profile{profile}}
	players := &fakePlayers{rosters: map[int64][]models.Player{
		1: {{PlayerName: "Serena"}, {PlayerName: "Rafa"}},
	}}

	g, err := New(lister, players, &fakeUploader{}, slog.Default())
	require.NoError(t, err)

	html, err := g.Render(context.Background())
	require.NoError(t, err)

	page := string(html)
	assert.Contains(t, page, "alice")
	assert.Contains(t, page, "Bretagne, France")
	assert.Contains(t, page, "Serena")
	assert.NotContains(t, page, address, "the precise address never reaches the page")
}

func TestRenderSkipsProfilesWithoutCoordinates(t *testing.T) {
	lister := &fakeLister{profiles: []models.Profile{
		{DiscordID: 2, Username: "bob"}, // no coordinates
		located(1, "alice", "Bretagne, France", 48.11, -1.68),
	}}

	g, err := New(lister, &fakePlayers{}, &fakeUploader{}, slog.Default())
	require.NoError(t, err)

	html, err := g.Render(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, string(html), "bob")
}

func TestRenderFallbackDisplay(t *testing.T) {
	profile := located(1, "alice", "", 48.11, -1.68)
	lister := &fakeLister{profiles: []models.Profile{profile}}

	g, err := New(lister, &fakePlayers{}, &fakeUploader{}, slog.Default())
	require.NoError(t, err)

	html, err := g.Render(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(html), "Localisation définie")
}

func TestPublish(t *testing.T) {
	uploader := &fakeUploader{}
	lister := &fakeLister{profiles: []models.Profile{
		located(1, "alice", "Bretagne, France", 48.11, -1.68),
	}}

	g, err := New(lister, &fakePlayers{}, uploader, slog.Default())
	require.NoError(t, err)

	url, err := g.Publish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.org/"+ObjectKey, url)
	assert.Equal(t, ObjectKey, uploader.key)
	assert.Equal(t, "text/html; charset=utf-8", uploader.contentType)
	assert.Contains(t, string(uploader.body), "alice")
}

func TestRequestUpdateNeverBlocks(t *testing.T) {
	g, err := New(&fakeLister{}, &fakePlayers{}, &fakeUploader{}, slog.Default())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		g.RequestUpdate()
	}
}
