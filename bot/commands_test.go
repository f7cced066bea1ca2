package bot

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisispsg/community-bot/i18n"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/services"
)

// newHandlersEnv builds Handlers on top of a flow environment, enough for the
// command tests that do not touch moderation or captures.
func newHandlersEnv(t *testing.T) (*Handlers, *flowEnv) {
	t.Helper()
	env := newFlowEnv(t, nil)
	rosterSvc := services.NewRosterService(env.players, memTeams{}, memTx{}, slog.Default())
	h := NewHandlers(
		env.session, env.bundle, env.profileSvc, rosterSvc,
		nil, nil, env.flow, nil, nil,
		"", "https://example.org", "", slog.Default(),
	)
	return h, env
}

func TestRegisterAllCommandTable(t *testing.T) {
	h, _ := newHandlersEnv(t)
	router, _, _ := newTestRouter(t)
	h.RegisterAll(router)

	names := []string{
		"inscription", "register",
		"profil", "profile",
		"joueur", "joueurs", "player", "players",
		"localisation", "location", "loc",
		"langue", "lang", "language",
		"carte", "map",
		"site",
		"help", "aide",
		"users", "membres",
		"capture", "cap",
		"attente", "pending",
		"valider", "approve",
		"refuser", "refuse", "reject",
		"reset",
		"supprimer", "delete",
		"profil-admin", "profile-admin",
		"audit",
	}
	for _, name := range names {
		assert.Contains(t, router.commands, name)
	}

	require.Contains(t, router.commands, "profil-admin")
	assert.True(t, router.commands["profil-admin"].Sage)
	assert.Same(t, router.commands["profil-admin"], router.commands["profile-admin"])
}

func sageInvocation(command string, args ...string) *Invocation {
	return &Invocation{
		Message: Message{AuthorID: 99, AuthorUsername: "sage", DM: true, Sage: true},
		Command: command,
		Args:    args,
		Lang:    "FR",
	}
}

func TestProfilAdminUsage(t *testing.T) {
	h, env := newHandlersEnv(t)

	require.NoError(t, h.ProfilAdmin(context.Background(), sageInvocation("profil-admin")))
	assert.Equal(t, env.bundle.T("sages.profil_admin_usage", "FR", nil), env.session.lastDM(99))
}

func TestProfilAdminSearchBySubstring(t *testing.T) {
	h, env := newHandlersEnv(t)
	env.seedMember(1, "alice")
	env.seedMember(2, "alicia")
	env.seedMember(3, "bob")

	require.NoError(t, h.ProfilAdmin(context.Background(), sageInvocation("profil-admin", "ali")))

	assert.Equal(t, 2, env.session.dmCount(99), "one DM per match")
	all := strings.Join(env.session.dms[99], "\n")
	assert.Contains(t, all, "alice")
	assert.Contains(t, all, "alicia")
	assert.NotContains(t, all, "bob")
}

func TestProfilAdminSearchByID(t *testing.T) {
	h, env := newHandlersEnv(t)
	env.seedMember(7, "charlie")
	_, err := env.players.ReplaceTeamRoster(context.Background(), nil, 7, models.Team1ID, []string{"Serena"})
	require.NoError(t, err)

	require.NoError(t, h.ProfilAdmin(context.Background(), sageInvocation("profil-admin", "7")))

	require.Equal(t, 1, env.session.dmCount(99))
	report := env.session.lastDM(99)
	assert.Contains(t, report, "charlie")
	assert.Contains(t, report, "ID: 7")
	assert.Contains(t, report, "Serena")
}

func TestProfilAdminUnknownMember(t *testing.T) {
	h, env := newHandlersEnv(t)

	require.NoError(t, h.ProfilAdmin(context.Background(), sageInvocation("profil-admin", "nobody")))
	assert.Equal(t,
		env.bundle.T("sages.member_not_found", "FR", i18n.Vars{"search": "nobody"}),
		env.session.lastDM(99))
}

func TestProfilAdminInChannelConfirmsCount(t *testing.T) {
	h, env := newHandlersEnv(t)
	env.seedMember(1, "alice")

	inv := sageInvocation("profil-admin", "alice")
	inv.DM = false
	inv.ChannelID = "sages"
	require.NoError(t, h.ProfilAdmin(context.Background(), inv))

	assert.Equal(t, 1, env.session.dmCount(99), "profile still delivered by DM")
	require.Len(t, env.session.channelSends["sages"], 1)
	assert.Contains(t, env.session.channelSends["sages"][0], "1 profil(s)")
}

// Every approval status renders a translated line in the profile summaries.
func TestProfileStatusKeysExist(t *testing.T) {
	_, env := newHandlersEnv(t)

	statuses := []models.ApprovalStatus{
		models.StatusPending, models.StatusApproved,
		models.StatusRefused, models.StatusDeleted,
	}
	for _, lang := range []string{"FR", "EN"} {
		for _, status := range statuses {
			key := "profile.status_" + string(status)
			assert.NotEqual(t, key, env.bundle.T(key, lang, nil), "%s missing in %s", key, lang)
		}
	}
}
