package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/sqlitex"
)

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	db, err := sqlitex.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("sqlitex.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqliteStore, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv := NewConversation("conv-"+name, time.Now())
			conv.PatientID = "7654321"
			_ = conv.BeginTurn("what are your hours?", time.Now())
			_ = conv.Activate("faq", time.Now())
			_ = conv.Complete("faq", "We open at 8.", time.Now())
			_ = conv.Settle(time.Now())

			if err := store.Save(ctx, conv); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := store.Load(ctx, conv.ID)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.PatientID != "7654321" || got.LastSpecialist != "faq" {
				t.Fatalf("Load() = %+v", got)
			}
			if len(got.Turns) != 2 || got.Turns[1].Content != "We open at 8." {
				t.Fatalf("turns = %+v", got.Turns)
			}
			if got.Version != conv.Version {
				t.Fatalf("Version = %d, want %d", got.Version, conv.Version)
			}

			got.Turns[0].Content = "mutated"
			again, err := store.Load(ctx, conv.ID)
			if err != nil {
				t.Fatalf("Load() again error = %v", err)
			}
			if again.Turns[0].Content != "what are your hours?" {
				t.Fatal("store returned shared state")
			}

			if err := store.Save(ctx, got); err != nil {
				t.Fatalf("second Save() error = %v", err)
			}
			if err := store.Delete(ctx, conv.ID); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := store.Load(ctx, conv.ID); !errors.Is(err, ErrStateNotFound) {
				t.Fatalf("Load() after delete error = %v, want ErrStateNotFound", err)
			}
		})
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, nil); !errors.Is(err, ErrNilConversation) {
				t.Fatalf("Save(nil) error = %v", err)
			}
			if err := store.Save(ctx, &Conversation{Phase: PhaseAwaitingUserTurn}); !errors.Is(err, ErrInvalidConversation) {
				t.Fatalf("Save(empty id) error = %v", err)
			}
			if _, err := store.Load(ctx, " "); !errors.Is(err, ErrInvalidConversation) {
				t.Fatalf("Load(blank) error = %v", err)
			}
		})
	}
}
