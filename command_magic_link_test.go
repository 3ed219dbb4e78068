package gatekeeper_test

import (
	"context"
	"testing"
	"time"

	gatekeeper "github.com/goliatone/go-gatekeeper"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingNotifier struct {
	links []*gatekeeper.MagicLink
}

func (c *capturingNotifier) Notify(_ context.Context, link *gatekeeper.MagicLink) error {
	c.links = append(c.links, link)
	return nil
}

func TestRequestMagicLink(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t)
	sink := &capturingSink{}
	notifier := &capturingNotifier{}

	handler := gatekeeper.NewRequestMagicLinkHandler(repo).
		WithNotifier(notifier).
		WithActivitySink(sink).
		WithLogger(silentLogger{})

	err := handler.Execute(ctx, gatekeeper.RequestMagicLinkMessage{
		Email:    "Nobody@Example.com",
		DeviceID: "device-1",
	})
	require.NoError(t, err, "unknown emails still get a link, no enumeration oracle")

	require.Len(t, notifier.links, 1)
	link := notifier.links[0]
	assert.Equal(t, "nobody@example.com", link.Email)

	stored, err := repo.MagicLinks().Get(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.LinkSent, stored.Status)

	events := sink.byType(gatekeeper.ActivityEventLinkRequested)
	require.Len(t, events, 1)
	assert.Equal(t, "nobody@example.com", events[0].Email)
}

func TestRequestMagicLinkRejectsMalformedEmail(t *testing.T) {
	repo := setupManager(t)
	handler := gatekeeper.NewRequestMagicLinkHandler(repo).WithLogger(silentLogger{})

	err := handler.Execute(context.Background(), gatekeeper.RequestMagicLinkMessage{Email: "not-an-email"})
	require.Error(t, err)

	status, _ := gatekeeper.StatusFromError(err)
	assert.Equal(t, 400, status)
}

func requestAndRedeem(t *testing.T, repo gatekeeper.RepositoryManager, handler *gatekeeper.RedeemMagicLinkHandler, email string) (*gatekeeper.SessionGrant, error) {
	t.Helper()

	link, err := repo.MagicLinks().Create(context.Background(), &gatekeeper.MagicLink{Email: email})
	require.NoError(t, err)

	return handler.Execute(context.Background(), gatekeeper.RedeemMagicLinkMessage{
		Token: link.ID.String(),
	})
}

func TestRedeemCreatesUserAndSession(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t)
	tokens := newTokenService()
	sink := &capturingSink{}

	deadline := time.Now().Add(14 * 24 * time.Hour)
	_, err := repo.Whitelist().Put(ctx, &gatekeeper.WhitelistEntry{
		Email:          "bob@example.com",
		Role:           gatekeeper.RoleAdmin,
		ExpirationDate: &deadline,
	})
	require.NoError(t, err)

	handler := gatekeeper.NewRedeemMagicLinkHandler(repo, tokens).
		WithActivitySink(sink).
		WithLogger(silentLogger{})

	grant, err := requestAndRedeem(t, repo, handler, "Bob@Example.com")
	require.NoError(t, err)
	require.NotNil(t, grant)

	// role copied from the whitelist entry at this instant
	assert.Equal(t, gatekeeper.RoleAdmin, grant.User.Role)
	assert.Equal(t, "bob@example.com", grant.User.Email)
	require.NotNil(t, grant.User.ExpirationDate)

	claims, err := tokens.Validate(grant.Token)
	require.NoError(t, err)
	assert.Equal(t, grant.User.ID.String(), claims.UserID())
	assert.Equal(t, "admin", claims.Role())

	sessions, err := repo.Sessions().ListByUser(ctx, grant.User.ID, gatekeeper.TokenTypeSession)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, grant.SessionID, sessions[0].ID)

	entry, err := repo.Whitelist().GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, entry.HasRegistered())

	user, err := repo.Users().GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.NotNil(t, user.LastActiveAt)

	logins := sink.byType(gatekeeper.ActivityEventLogin)
	require.Len(t, logins, 1)
	assert.Equal(t, grant.User.ID.String(), logins[0].UserID)
}

func TestRedeemLaterWhitelistEditsDoNotPropagate(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t)
	handler := gatekeeper.NewRedeemMagicLinkHandler(repo, newTokenService()).WithLogger(silentLogger{})

	_, err := repo.Whitelist().Put(ctx, &gatekeeper.WhitelistEntry{Email: "bob@example.com", Role: gatekeeper.RoleBasic})
	require.NoError(t, err)

	grant, err := requestAndRedeem(t, repo, handler, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.RoleBasic, grant.User.Role)

	_, err = repo.Whitelist().Put(ctx, &gatekeeper.WhitelistEntry{Email: "bob@example.com", Role: gatekeeper.RoleAdmin})
	require.NoError(t, err)

	grant, err = requestAndRedeem(t, repo, handler, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.RoleBasic, grant.User.Role, "role was frozen at registration")
}

func TestRedeemNotWhitelisted(t *testing.T) {
	repo := setupManager(t)
	sink := &capturingSink{}
	handler := gatekeeper.NewRedeemMagicLinkHandler(repo, newTokenService()).
		WithActivitySink(sink).
		WithLogger(silentLogger{})

	_, err := requestAndRedeem(t, repo, handler, "stranger@example.com")
	require.ErrorIs(t, err, gatekeeper.ErrNotAuthorized)

	_, lookupErr := repo.Users().GetByEmail(context.Background(), "stranger@example.com")
	assert.Error(t, lookupErr, "no user is created on a refused redemption")

	failures := sink.byType(gatekeeper.ActivityEventLoginFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, gatekeeper.TextCodeNotAuthorized, failures[0].Metadata["reason"])
}

func TestRedeemAutoApprovedDomainSkipsWhitelist(t *testing.T) {
	repo := setupManager(t)
	handler := gatekeeper.NewRedeemMagicLinkHandler(repo, newTokenService()).
		WithAutoApprovedDomains("acme.io").
		WithLogger(silentLogger{})

	grant, err := requestAndRedeem(t, repo, handler, "anyone@acme.io")
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.RoleBasic, grant.User.Role)
}

func TestRedeemExpiredInvitationBlocksFirstRegistration(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t)
	handler := gatekeeper.NewRedeemMagicLinkHandler(repo, newTokenService()).WithLogger(silentLogger{})

	past := time.Now().Add(-time.Hour)
	_, err := repo.Whitelist().Put(ctx, &gatekeeper.WhitelistEntry{
		Email:          "late@example.com",
		Role:           gatekeeper.RoleBasic,
		ExpirationDate: &past,
	})
	require.NoError(t, err)

	_, err = requestAndRedeem(t, repo, handler, "late@example.com")
	assert.ErrorIs(t, err, gatekeeper.ErrInvitationExpired)
}

func TestRedeemExpiredEntryDoesNotBlockRegisteredUser(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t)
	handler := gatekeeper.NewRedeemMagicLinkHandler(repo, newTokenService()).WithLogger(silentLogger{})

	future := time.Now().Add(time.Hour)
	_, err := repo.Whitelist().Put(ctx, &gatekeeper.WhitelistEntry{
		Email:          "ok@example.com",
		Role:           gatekeeper.RoleBasic,
		ExpirationDate: &future,
	})
	require.NoError(t, err)

	grant, err := requestAndRedeem(t, repo, handler, "ok@example.com")
	require.NoError(t, err)

	// the invitation deadline passes after registration
	past := time.Now().Add(-time.Hour)
	_, err = repo.Whitelist().Put(ctx, &gatekeeper.WhitelistEntry{
		Email:          "ok@example.com",
		Role:           gatekeeper.RoleBasic,
		ExpirationDate: &past,
	})
	require.NoError(t, err)

	// the user's own expiration still lies ahead, sign-in keeps working
	_, err = repo.Users().Apply(ctx, grant.User.ID, gatekeeper.UserUpdate{ExpirationDate: &future})
	require.NoError(t, err)

	_, err = requestAndRedeem(t, repo, handler, "ok@example.com")
	assert.NoError(t, err)
}

func TestRedeemDeactivatedAccount(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t)
	handler := gatekeeper.NewRedeemMagicLinkHandler(repo, newTokenService()).WithLogger(silentLogger{})

	_, err := repo.Whitelist().Put(ctx, &gatekeeper.WhitelistEntry{Email: "off@example.com", Role: gatekeeper.RoleBasic})
	require.NoError(t, err)

	grant, err := requestAndRedeem(t, repo, handler, "off@example.com")
	require.NoError(t, err)

	_, err = repo.Users().Deactivate(ctx, grant.User.ID, time.Now())
	require.NoError(t, err)

	_, err = requestAndRedeem(t, repo, handler, "off@example.com")
	assert.ErrorIs(t, err, gatekeeper.ErrAccountDeactivated)
}

func TestRedeemExpiredAccount(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t)
	handler := gatekeeper.NewRedeemMagicLinkHandler(repo, newTokenService()).WithLogger(silentLogger{})

	_, err := repo.Whitelist().Put(ctx, &gatekeeper.WhitelistEntry{Email: "old@example.com", Role: gatekeeper.RoleBasic})
	require.NoError(t, err)

	grant, err := requestAndRedeem(t, repo, handler, "old@example.com")
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	_, err = repo.Users().Apply(ctx, grant.User.ID, gatekeeper.UserUpdate{ExpirationDate: &past})
	require.NoError(t, err)

	_, err = requestAndRedeem(t, repo, handler, "old@example.com")
	assert.ErrorIs(t, err, gatekeeper.ErrAccountExpired)
}

func TestRedeemUsedOrUnknownLink(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t)
	handler := gatekeeper.NewRedeemMagicLinkHandler(repo, newTokenService()).WithLogger(silentLogger{})

	_, err := repo.Whitelist().Put(ctx, &gatekeeper.WhitelistEntry{Email: "bob@example.com", Role: gatekeeper.RoleBasic})
	require.NoError(t, err)

	link, err := repo.MagicLinks().Create(ctx, &gatekeeper.MagicLink{Email: "bob@example.com"})
	require.NoError(t, err)

	_, err = handler.Execute(ctx, gatekeeper.RedeemMagicLinkMessage{Token: link.ID.String()})
	require.NoError(t, err)

	// second use of the same link
	_, err = handler.Execute(ctx, gatekeeper.RedeemMagicLinkMessage{Token: link.ID.String()})
	assert.ErrorIs(t, err, gatekeeper.ErrInvalidOrExpiredLink)

	// never-issued link
	_, err = handler.Execute(ctx, gatekeeper.RedeemMagicLinkMessage{Token: uuid.NewString()})
	assert.ErrorIs(t, err, gatekeeper.ErrInvalidOrExpiredLink)

	// malformed token
	_, err = handler.Execute(ctx, gatekeeper.RedeemMagicLinkMessage{Token: "zzz"})
	assert.ErrorIs(t, err, gatekeeper.ErrInvalidOrExpiredLink)

	sessions, err := repo.Sessions().ListByUser(ctx, uuid.Nil, "")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
