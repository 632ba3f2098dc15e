package liveChat

import (
	"sort"
	"time"
)

// connectionsOf returns userID plus the partner of every chat userID is in,
// sorted and without duplicates.
func connectionsOf(userID string, chats []ChatRelation) []string {
	seen := map[string]bool{userID: true}
	connections := []string{userID}

	for _, chat := range chats {
		if !chat.Involves(userID) {
			continue
		}
		partner := chat.Partner(userID).UserID
		if partner == "" || seen[partner] {
			continue
		}
		seen[partner] = true
		connections = append(connections, partner)
	}

	sort.Strings(connections)
	return connections
}

func visibleStatuses(statuses []StatusPost, connections []string, now time.Time) []StatusPost {
	allowed := make(map[string]bool, len(connections))
	for _, id := range connections {
		allowed[id] = true
	}
	cutoff := now.Add(-StatusLifetime).UnixMilli()

	visible := make([]StatusPost, 0, len(statuses))
	for _, status := range statuses {
		if status.Timestamp > cutoff && allowed[status.User.UserID] {
			visible = append(visible, status)
		}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].Timestamp != visible[j].Timestamp {
			return visible[i].Timestamp < visible[j].Timestamp
		}
		return visible[i].ID < visible[j].ID
	})
	return visible
}

// PartitionStatuses splits statuses into those posted by selfID and the rest.
func PartitionStatuses(statuses []StatusPost, selfID string) (own, others []StatusPost) {
	for _, status := range statuses {
		if status.User.UserID == selfID {
			own = append(own, status)
		} else {
			others = append(others, status)
		}
	}
	return own, others
}

// LatestPerAuthor keeps the newest status of each author, newest first.
func LatestPerAuthor(statuses []StatusPost) []StatusPost {
	latest := map[string]StatusPost{}
	for _, status := range statuses {
		current, ok := latest[status.User.UserID]
		if !ok || status.Timestamp > current.Timestamp {
			latest[status.User.UserID] = status
		}
	}

	result := make([]StatusPost, 0, len(latest))
	for _, status := range latest {
		result = append(result, status)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].User.UserID < result[j].User.UserID
	})
	return result
}

// StatusesBy returns the statuses posted by userID in their original order.
func StatusesBy(statuses []StatusPost, userID string) []StatusPost {
	var result []StatusPost
	for _, status := range statuses {
		if status.User.UserID == userID {
			result = append(result, status)
		}
	}
	return result
}
