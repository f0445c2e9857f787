package api

import (
	"encoding/json"
	"net/http"

	"github.com/smilecare/dental-scheduling/internal/directory"
	"github.com/smilecare/dental-scheduling/internal/identity"
	"github.com/smilecare/dental-scheduling/internal/notify"
)

func listNotificationsHandler(store notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := identity.FromContext(r.Context())
		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)

		list, err := store.ListByRecipient(r.Context(), actor.UserID, limit, offset)
		if err != nil {
			handleNotificationError(w, err)
			return
		}

		out := make([]NotificationResponse, 0, len(list))
		for _, n := range list {
			out = append(out, NotificationResponse{
				ID:        n.ID,
				Category:  string(n.Category),
				Title:     n.Title,
				Message:   n.Message,
				Link:      n.Link,
				Read:      n.Read,
				CreatedAt: n.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func unreadCountHandler(store notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := identity.FromContext(r.Context())

		count, err := store.CountUnread(r.Context(), actor.UserID)
		if err != nil {
			handleNotificationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, UnreadCountResponse{Unread: count})
	}
}

func markNotificationReadHandler(store notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		actor := identity.FromContext(r.Context())

		if err := store.MarkRead(r.Context(), id, actor.UserID); err != nil {
			handleNotificationError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func markAllNotificationsReadHandler(store notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := identity.FromContext(r.Context())

		updated, err := store.MarkAllRead(r.Context(), actor.UserID)
		if err != nil {
			handleNotificationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
	}
}

func getPrefsHandler(prefs directory.PrefStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := identity.FromContext(r.Context())

		p, err := prefs.PrefsByUserID(r.Context(), actor.UserID)
		if err != nil {
			handleNotificationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func updatePrefsHandler(prefs directory.PrefStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := identity.FromContext(r.Context())

		var p directory.Prefs
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := prefs.UpdatePrefs(r.Context(), actor.UserID, p); err != nil {
			handleNotificationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}
