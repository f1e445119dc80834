package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venaticlol/venatic/internal/hub"
	"github.com/venaticlol/venatic/internal/models"
)

func decode[T any](t *testing.T, body *strings.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func events(client *hub.Client) []string {
	var out []string
	for {
		select {
		case msg := <-client.Messages():
			out = append(out, strings.SplitN(msg, "\n", 2)[0])
		case <-time.After(10 * time.Millisecond):
			return out
		}
	}
}

func (e *testEnv) createServer(t *testing.T, owner chatUser, name string) models.Server {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/server/create?name="+name, nil, owner.JWT)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Server](t, strings.NewReader(rec.Body.String()))
}

func (e *testEnv) channels(t *testing.T, user chatUser, session *http.Cookie, serverID int64) []models.Channel {
	t.Helper()
	rec := e.do(t, http.MethodGet, fmt.Sprintf("/api/channel/fetch?serverID=%d", serverID), nil, user.JWT, session)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[[]models.Channel](t, strings.NewReader(rec.Body.String()))
}

func TestServerGetsDefaultChannel(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	_, session := env.connect(t, owner, 1)

	server := env.createServer(t, owner, "guild")
	assert.Equal(t, "guild", server.Name)
	assert.Equal(t, owner.ID, server.OwnerID)

	channels := env.channels(t, owner, session, server.ID)
	require.Len(t, channels, 1)
	assert.Equal(t, "general", channels[0].Name)
	assert.Equal(t, models.ChannelTypeText, channels[0].Type)

	rec := env.do(t, http.MethodGet, "/api/server/fetch", nil, owner.JWT, session)
	require.Equal(t, http.StatusOK, rec.Code)
	servers := decode[[]models.Server](t, strings.NewReader(rec.Body.String()))
	require.Len(t, servers, 1)
	assert.Equal(t, server.ID, servers[0].ID)
}

func TestSessionVerifierNeedsConnectedClient(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "lonely")
	other := env.register(t, "other")
	_, otherSession := env.connect(t, other, 7)

	rec := env.do(t, http.MethodGet, "/api/server/fetch", nil, user.JWT)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/server/fetch", nil, user.JWT, &http.Cookie{Name: SessionCookieName, Value: "99"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// a session belonging to somebody else doesn't count
	rec = env.do(t, http.MethodGet, "/api/server/fetch", nil, user.JWT, otherSession)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChannelPermissions(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	stranger := env.register(t, "stranger")
	_, strangerSession := env.connect(t, stranger, 2)

	server := env.createServer(t, owner, "guild")

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/create?serverID=%d&name=voice&type=voice", server.ID), nil, stranger.JWT)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/channel/fetch?serverID=%d", server.ID), nil, stranger.JWT, strangerSession)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/create?serverID=%d&name=x&type=video", server.ID), nil, owner.JWT)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/create?serverID=%d&name=talk&type=voice", server.ID), nil, owner.JWT)
	require.Equal(t, http.StatusCreated, rec.Code)
	channel := decode[models.Channel](t, strings.NewReader(rec.Body.String()))
	assert.Equal(t, models.ChannelTypeVoice, channel.Type)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/rename?channelID=%d&name=lounge", channel.ID), nil, stranger.JWT)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/rename?channelID=%d&name=%s", channel.ID, strings.Repeat("a", 33)), nil, owner.JWT)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/channel/rename?channelID=404&name=lounge", nil, owner.JWT)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/rename?channelID=%d&name=lounge", channel.ID), nil, owner.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	renamed := decode[models.Channel](t, strings.NewReader(rec.Body.String()))
	assert.Equal(t, "lounge", renamed.Name)
	assert.Equal(t, models.ChannelTypeVoice, renamed.Type)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/delete?channelID=%d", channel.ID), nil, stranger.JWT)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/delete?channelID=%d", channel.ID), nil, owner.JWT)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMessagesFlow(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	member := env.register(t, "member")
	ownerClient, ownerSession := env.connect(t, owner, 1)
	_, memberSession := env.connect(t, member, 2)

	server := env.createServer(t, owner, "guild")
	channelID := env.channels(t, owner, ownerSession, server.ID)[0].ID

	// not a member yet
	rec := env.do(t, http.MethodPost, "/api/message/create", map[string]string{"message": "hi", "channelID": fmt.Sprint(channelID)}, member.JWT)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/join?serverID=%d", server.ID), nil, member.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/join?serverID=%d", server.ID), nil, member.JWT)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// owner opens the channel and receives what is posted in it
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/message/fetch?channelID=%d", channelID), nil, owner.JWT, ownerSession)
	require.Equal(t, http.StatusOK, rec.Code)
	events(ownerClient)

	for i := range 3 {
		rec = env.do(t, http.MethodPost, "/api/message/create", map[string]string{"message": fmt.Sprintf("message %d", i), "channelID": fmt.Sprint(channelID)}, member.JWT)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	assert.Equal(t, []string{hub.MessageCreated, hub.MessageCreated, hub.MessageCreated}, events(ownerClient))

	rec = env.do(t, http.MethodPost, "/api/message/create", map[string]string{"message": "   ", "channelID": fmt.Sprint(channelID)}, member.JWT)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/message/create", map[string]string{"message": strings.Repeat("a", 2001), "channelID": fmt.Sprint(channelID)}, member.JWT)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/message/fetch?channelID=%d", channelID), nil, member.JWT, memberSession)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decode[[]models.Message](t, strings.NewReader(rec.Body.String()))
	require.Len(t, messages, 3)
	assert.Equal(t, "message 0", messages[0].Message)
	assert.Equal(t, "message 2", messages[2].Message)
	assert.Less(t, messages[0].ID, messages[1].ID)
	assert.NotZero(t, messages[0].Timestamp)

	// paging backwards
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/message/fetch?channelID=%d&before=%d&limit=1", channelID, messages[2].ID), nil, member.JWT, memberSession)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[[]models.Message](t, strings.NewReader(rec.Body.String()))
	require.Len(t, page, 1)
	assert.Equal(t, "message 1", page[0].Message)

	// only the author can delete
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/message/delete?messageID=%d", messages[0].ID), nil, owner.JWT)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/message/delete?messageID=%d", messages[0].ID), nil, member.JWT)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{hub.MessageDeleted}, events(ownerClient))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/members/fetch?channelID=%d", channelID), nil, member.JWT, memberSession)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.User](t, strings.NewReader(rec.Body.String())), 2)
}

func TestServerOwnerActions(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	member := env.register(t, "member")
	_, ownerSession := env.connect(t, owner, 1)
	memberClient, memberSession := env.connect(t, member, 2)

	server := env.createServer(t, owner, "guild")
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/server/join?serverID=%d", server.ID), nil, member.JWT)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/server/fetch", nil, member.JWT, memberSession)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/rename?serverID=%d&name=renamed", server.ID), nil, member.JWT)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/rename?serverID=%d&name=", server.ID), nil, owner.JWT)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/rename?serverID=%d&name=renamed", server.ID), nil, owner.JWT)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{hub.ServerModified}, events(memberClient))

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/leave?serverID=%d", server.ID), nil, owner.JWT, ownerSession)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/delete?serverID=%d", server.ID), nil, owner.JWT)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{hub.ServerDeleted}, events(memberClient))

	rec = env.do(t, http.MethodGet, "/api/server/fetch", nil, member.JWT, memberSession)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Server](t, strings.NewReader(rec.Body.String())))
}

func TestDirectMessages(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	aliceClient, aliceSession := env.connect(t, alice, 1)
	bobClient, bobSession := env.connect(t, bob, 2)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/dm/open?userID=%d", alice.ID), nil, alice.JWT)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/dm/open?userID=%d", bob.ID), nil, alice.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	dm := decode[models.DirectMessage](t, strings.NewReader(rec.Body.String()))
	assert.Equal(t, bob.ID, dm.Other.ID)
	assert.Equal(t, []string{hub.DirectMessageOpened}, events(bobClient))

	// opening from the other side finds the same conversation
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/dm/open?userID=%d", alice.ID), nil, bob.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[models.DirectMessage](t, strings.NewReader(rec.Body.String()))
	assert.Equal(t, dm.ID, again.ID)
	assert.Equal(t, alice.ID, again.Other.ID)
	assert.Empty(t, events(aliceClient))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/dm/fetch?dmID=%d", dm.ID), nil, bob.JWT, bobSession)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/dm/send", map[string]string{"message": "hey bob", "dmID": fmt.Sprint(dm.ID)}, alice.JWT)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{hub.DirectMessageCreated}, events(bobClient))

	rec = env.do(t, http.MethodGet, "/api/dm/list", nil, alice.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.DirectMessage](t, strings.NewReader(rec.Body.String()))
	require.Len(t, list, 1)
	assert.Equal(t, bob.ID, list[0].Other.ID)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/dm/fetch?dmID=%d", dm.ID), nil, alice.JWT, aliceSession)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decode[[]models.DirectMessageMessage](t, strings.NewReader(rec.Body.String()))
	require.Len(t, messages, 1)
	assert.Equal(t, "hey bob", messages[0].Message)

	carol := env.register(t, "carol")
	rec = env.do(t, http.MethodPost, "/api/dm/send", map[string]string{"message": "intruder", "dmID": fmt.Sprint(dm.ID)}, carol.JWT)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOpeningChannelDetachesConversation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	bobClient, bobSession := env.connect(t, bob, 2)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/dm/open?userID=%d", bob.ID), nil, alice.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	dm := decode[models.DirectMessage](t, strings.NewReader(rec.Body.String()))

	server := env.createServer(t, bob, "guild")

	send := func() {
		rec := env.do(t, http.MethodPost, "/api/dm/send", map[string]string{"message": "ping", "dmID": fmt.Sprint(dm.ID)}, alice.JWT)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// open the conversation twice, messages still arrive once
	for range 2 {
		rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/dm/fetch?dmID=%d", dm.ID), nil, bob.JWT, bobSession)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	events(bobClient)
	send()
	assert.Equal(t, []string{hub.DirectMessageCreated}, events(bobClient))

	// switching to a server view detaches the conversation
	env.channels(t, bob, bobSession, server.ID)
	send()
	assert.Empty(t, events(bobClient))
}

func TestChannelRenameReachesServerView(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	ownerClient, ownerSession := env.connect(t, owner, 1)

	server := env.createServer(t, owner, "guild")
	channelID := env.channels(t, owner, ownerSession, server.ID)[0].ID

	// open the channel, then reload the same server, the channel stays open
	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/message/fetch?channelID=%d", channelID), nil, owner.JWT, ownerSession)
	require.Equal(t, http.StatusOK, rec.Code)
	env.channels(t, owner, ownerSession, server.ID)
	events(ownerClient)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/rename?channelID=%d&name=lounge", channelID), nil, owner.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/message/create", map[string]string{"message": "hi", "channelID": fmt.Sprint(channelID)}, owner.JWT)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, []string{hub.ChannelModified, hub.MessageCreated}, events(ownerClient))
}

func TestEditMessage(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	member := env.register(t, "member")
	ownerClient, ownerSession := env.connect(t, owner, 1)

	server := env.createServer(t, owner, "guild")
	channelID := env.channels(t, owner, ownerSession, server.ID)[0].ID
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/server/join?serverID=%d", server.ID), nil, member.JWT)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/message/create", map[string]string{"message": "helo", "channelID": fmt.Sprint(channelID)}, member.JWT)
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := decode[models.Message](t, strings.NewReader(rec.Body.String()))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/message/fetch?channelID=%d", channelID), nil, owner.JWT, ownerSession)
	require.Equal(t, http.StatusOK, rec.Code)
	events(ownerClient)

	rec = env.do(t, http.MethodPost, "/api/message/edit", map[string]string{"messageID": fmt.Sprint(msg.ID), "message": "hijack"}, owner.JWT)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/message/edit", map[string]string{"messageID": fmt.Sprint(msg.ID), "message": " "}, member.JWT)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/message/edit", map[string]string{"messageID": "404", "message": "hello"}, member.JWT)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/message/edit", map[string]string{"messageID": fmt.Sprint(msg.ID), "message": "hello"}, member.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decode[models.Message](t, strings.NewReader(rec.Body.String()))
	assert.Equal(t, "hello", edited.Message)
	assert.True(t, edited.Edited)
	assert.Equal(t, []string{hub.MessageModified}, events(ownerClient))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/message/fetch?channelID=%d", channelID), nil, owner.JWT, ownerSession)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decode[[]models.Message](t, strings.NewReader(rec.Body.String()))
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Message)
	assert.True(t, messages[0].Edited)
}

func TestLeavingServerClosesEverySession(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	member := env.register(t, "member")
	_, ownerSession := env.connect(t, owner, 1)
	desktop, desktopSession := env.connect(t, member, 2)
	phone, phoneSession := env.connect(t, member, 3)

	server := env.createServer(t, owner, "guild")
	channelID := env.channels(t, owner, ownerSession, server.ID)[0].ID
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/server/join?serverID=%d", server.ID), nil, member.JWT)
	require.Equal(t, http.StatusOK, rec.Code)

	// desktop has the channel open, phone only the server list
	env.channels(t, member, desktopSession, server.ID)
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/message/fetch?channelID=%d", channelID), nil, member.JWT, desktopSession)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/server/fetch", nil, member.JWT, phoneSession)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/message/create", map[string]string{"message": "before", "channelID": fmt.Sprint(channelID)}, owner.JWT)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{hub.MessageCreated}, events(desktop))
	events(phone)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/leave?serverID=%d", server.ID), nil, member.JWT)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/message/create", map[string]string{"message": "after", "channelID": fmt.Sprint(channelID)}, owner.JWT)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/rename?serverID=%d&name=renamed", server.ID), nil, owner.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/channel/create?serverID=%d&name=more", server.ID), nil, owner.JWT)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Empty(t, events(desktop))
	assert.Empty(t, events(phone))

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/leave?serverID=%d", server.ID), nil, member.JWT)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaveIgnoresForeignSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	intruder := env.register(t, "intruder")
	ownerClient, ownerSession := env.connect(t, owner, 1)

	server := env.createServer(t, owner, "guild")
	rec := env.do(t, http.MethodGet, "/api/server/fetch", nil, owner.JWT, ownerSession)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/join?serverID=%d", server.ID), nil, intruder.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/leave?serverID=%d", server.ID), nil, intruder.JWT, ownerSession)
	require.Equal(t, http.StatusOK, rec.Code)
	events(ownerClient)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/server/rename?serverID=%d&name=renamed", server.ID), nil, owner.JWT)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{hub.ServerModified}, events(ownerClient))
}
