package liveChat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func participant(id string) ChatParticipant {
	return ChatParticipant{UserID: id, Name: id, Number: id}
}

func TestConnectionsOfUsesPartner(t *testing.T) {
	chats := []ChatRelation{
		newChatRelation("1", participant("me"), participant("bob")),
		newChatRelation("2", participant("carol"), participant("me")),
		newChatRelation("3", participant("bob"), participant("me")),
		newChatRelation("4", participant("dave"), participant("erin")),
	}

	assert.Equal(t, []string{"bob", "carol", "me"}, connectionsOf("me", chats))
	assert.Equal(t, []string{"me"}, connectionsOf("me", nil))
}

func TestVisibleStatuses(t *testing.T) {
	now := time.UnixMilli(100 * 3600 * 1000)
	hour := time.Hour.Milliseconds()
	statuses := []StatusPost{
		{ID: "b", User: participant("bob"), Timestamp: now.UnixMilli() - hour},
		{ID: "a", User: participant("me"), Timestamp: now.UnixMilli() - 2*hour},
		{ID: "x", User: participant("stranger"), Timestamp: now.UnixMilli()},
		{ID: "old", User: participant("bob"), Timestamp: now.UnixMilli() - 25*hour},
	}

	visible := visibleStatuses(statuses, []string{"me", "bob"}, now)

	var ids []string
	for _, s := range visible {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestPartitionAndLatestPerAuthor(t *testing.T) {
	statuses := []StatusPost{
		{ID: "1", User: participant("me"), Timestamp: 1},
		{ID: "2", User: participant("bob"), Timestamp: 2},
		{ID: "3", User: participant("carol"), Timestamp: 3},
		{ID: "4", User: participant("bob"), Timestamp: 4},
		{ID: "5", User: participant("me"), Timestamp: 5},
	}

	own, others := PartitionStatuses(statuses, "me")
	assert.Len(t, own, 2)
	assert.Len(t, others, 3)

	latest := LatestPerAuthor(others)
	assert.Len(t, latest, 2)
	assert.Equal(t, "4", latest[0].ID)
	assert.Equal(t, "3", latest[1].ID)

	byBob := StatusesBy(statuses, "bob")
	assert.Len(t, byBob, 2)
	assert.Equal(t, "2", byBob[0].ID)
}

func TestPairKeyIgnoresOrder(t *testing.T) {
	assert.Equal(t, pairKey("111", "222"), pairKey("222", "111"))
	assert.NotEqual(t, pairKey("111", "222"), pairKey("111", "223"))
}
