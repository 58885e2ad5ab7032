package storage

import (
	"context"
	"errors"
	"subscriber/internal/models"
	"testing"
	"time"
)

// runStorageSuite exercises the behavior every backend must share. s must be empty.
func runStorageSuite(t *testing.T, s Storage) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	newUser := func(name, email string, created time.Time) *models.User {
		u := models.NewUser(name, email, "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
		u.CreatedAt = created
		u.UpdatedAt = created
		return u
	}

	t.Run("UserCRUD", func(t *testing.T) {
		user := newUser("Alice", "alice@example.com", base)
		if err := s.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}

		got, err := s.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if got.Name != "Alice" || got.Email != "alice@example.com" {
			t.Errorf("unexpected user: %+v", got)
		}
		if got.PasswordHash != user.PasswordHash {
			t.Errorf("password hash not stored")
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("expected created_at %v, got %v", base, got.CreatedAt)
		}

		byEmail, err := s.GetUserByEmail(ctx, "ALICE@example.com")
		if err != nil {
			t.Fatalf("GetUserByEmail failed: %v", err)
		}
		if byEmail.ID != user.ID {
			t.Errorf("expected id %s, got %s", user.ID, byEmail.ID)
		}

		user.Name = "Alice Smith"
		user.Email = "alice.smith@example.com"
		user.UpdatedAt = base.Add(time.Hour)
		if err := s.UpdateUser(ctx, user); err != nil {
			t.Fatalf("UpdateUser failed: %v", err)
		}
		got, err = s.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser after update failed: %v", err)
		}
		if got.Name != "Alice Smith" || got.Email != "alice.smith@example.com" {
			t.Errorf("update not applied: %+v", got)
		}
		if !got.UpdatedAt.Equal(base.Add(time.Hour)) {
			t.Errorf("expected updated_at %v, got %v", base.Add(time.Hour), got.UpdatedAt)
		}
		if _, err := s.GetUserByEmail(ctx, "alice@example.com"); !errors.Is(err, ErrNotFound) {
			t.Errorf("old email should no longer resolve, got %v", err)
		}

		if err := s.DeleteUser(ctx, user.ID); err != nil {
			t.Fatalf("DeleteUser failed: %v", err)
		}
		if _, err := s.GetUser(ctx, user.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("UserNotFound", func(t *testing.T) {
		missing := "00000000-0000-0000-0000-000000000000"
		if _, err := s.GetUser(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetUser: expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetUserByEmail: expected ErrNotFound, got %v", err)
		}
		ghost := newUser("Ghost", "ghost@example.com", base)
		ghost.ID = missing
		if err := s.UpdateUser(ctx, ghost); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateUser: expected ErrNotFound, got %v", err)
		}
		if err := s.DeleteUser(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeleteUser: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UserEmailConflict", func(t *testing.T) {
		first := newUser("Bob", "bob@example.com", base)
		if err := s.CreateUser(ctx, first); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		dup := newUser("Bobby", "BOB@example.com", base)
		if err := s.CreateUser(ctx, dup); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate email, got %v", err)
		}

		other := newUser("Carol", "carol@example.com", base)
		if err := s.CreateUser(ctx, other); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		other.Email = "bob@example.com"
		if err := s.UpdateUser(ctx, other); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict updating to a taken email, got %v", err)
		}

		s.DeleteUser(ctx, first.ID)
		s.DeleteUser(ctx, other.ID)
	})

	t.Run("ListUsersNewestFirst", func(t *testing.T) {
		var ids []string
		for i, name := range []string{"Oldest", "Middle", "Newest"} {
			u := newUser(name, name+"@list.example.com", base.Add(time.Duration(i)*time.Minute))
			if err := s.CreateUser(ctx, u); err != nil {
				t.Fatalf("CreateUser failed: %v", err)
			}
			ids = append(ids, u.ID)
		}

		users, err := s.ListUsers(ctx)
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(users) != 3 {
			t.Fatalf("expected 3 users, got %d", len(users))
		}
		for i, want := range []string{ids[2], ids[1], ids[0]} {
			if users[i].ID != want {
				t.Errorf("position %d: expected %s, got %s (%s)", i, want, users[i].ID, users[i].Name)
			}
		}
	})

	t.Run("SubscriberLifecycle", func(t *testing.T) {
		sub := models.NewSubscriber("Ursula Le Guin", "ursula@example.com", models.HashToken("token-1"))
		if err := s.CreateSubscriber(ctx, sub); err != nil {
			t.Fatalf("CreateSubscriber failed: %v", err)
		}

		got, err := s.GetSubscriberByToken(ctx, models.HashToken("token-1"))
		if err != nil {
			t.Fatalf("GetSubscriberByToken failed: %v", err)
		}
		if got.ID != sub.ID || got.Status != models.SubscriptionPending {
			t.Errorf("unexpected subscriber: %+v", got)
		}
		if got.ConfirmedAt != nil {
			t.Errorf("pending subscriber should have no confirmation time")
		}

		confirmedAt := base.Add(2 * time.Hour)
		if err := s.ConfirmSubscriber(ctx, sub.ID, confirmedAt); err != nil {
			t.Fatalf("ConfirmSubscriber failed: %v", err)
		}

		got, err = s.GetSubscriberByEmail(ctx, "URSULA@example.com")
		if err != nil {
			t.Fatalf("GetSubscriberByEmail failed: %v", err)
		}
		if got.Status != models.SubscriptionConfirmed {
			t.Errorf("expected status %s, got %s", models.SubscriptionConfirmed, got.Status)
		}
		if got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(confirmedAt) {
			t.Errorf("expected confirmed_at %v, got %v", confirmedAt, got.ConfirmedAt)
		}

		dup := models.NewSubscriber("Someone Else", "ursula@example.com", models.HashToken("token-2"))
		if err := s.CreateSubscriber(ctx, dup); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate subscriber, got %v", err)
		}

		subs, err := s.ListSubscribers(ctx)
		if err != nil {
			t.Fatalf("ListSubscribers failed: %v", err)
		}
		if len(subs) != 1 {
			t.Errorf("expected 1 subscriber, got %d", len(subs))
		}
	})

	t.Run("DeleteSubscriberFreesEmail", func(t *testing.T) {
		sub := models.NewSubscriber("Octavia Butler", "octavia@example.com", models.HashToken("token-3"))
		if err := s.CreateSubscriber(ctx, sub); err != nil {
			t.Fatalf("CreateSubscriber failed: %v", err)
		}
		if err := s.DeleteSubscriber(ctx, sub.ID); err != nil {
			t.Fatalf("DeleteSubscriber failed: %v", err)
		}
		if _, err := s.GetSubscriberByToken(ctx, models.HashToken("token-3")); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSubscriberByToken after delete: expected ErrNotFound, got %v", err)
		}
		if err := s.DeleteSubscriber(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteSubscriber: expected ErrNotFound, got %v", err)
		}

		again := models.NewSubscriber("Octavia Butler", "octavia@example.com", models.HashToken("token-4"))
		if err := s.CreateSubscriber(ctx, again); err != nil {
			t.Fatalf("CreateSubscriber after delete failed: %v", err)
		}
		s.DeleteSubscriber(ctx, again.ID)
	})

	t.Run("SubscriberNotFound", func(t *testing.T) {
		if _, err := s.GetSubscriberByToken(ctx, models.HashToken("unknown")); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSubscriberByToken: expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetSubscriberByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSubscriberByEmail: expected ErrNotFound, got %v", err)
		}
		if err := s.ConfirmSubscriber(ctx, "00000000-0000-0000-0000-000000000000", base); !errors.Is(err, ErrNotFound) {
			t.Errorf("ConfirmSubscriber: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}
