package repositories

import (
	"errors"
	"testing"

	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
	"github.com/ghuser/inventorycatalog/services/item/domain/models"
)

func TestTx_InsertFindRemove(t *testing.T) {
	tx := NewTx(models.Collection{{ID: "a", Name: "Drill"}})

	if err := tx.Insert(&models.Item{ID: "b", Name: "Hammer"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !tx.Dirty() {
		t.Fatal("insert must mark the tx dirty")
	}

	if err := tx.Insert(&models.Item{ID: "a"}); !errors.Is(err, itemdomain.ErrItemAlreadyExists) {
		t.Fatalf("duplicate insert: expected ErrItemAlreadyExists, got %v", err)
	}

	item, err := tx.Find("b")
	if err != nil || item.Name != "Hammer" {
		t.Fatalf("find: got %+v, %v", item, err)
	}

	removed, err := tx.Remove("a")
	if err != nil || removed.ID != "a" {
		t.Fatalf("remove: got %+v, %v", removed, err)
	}
	if len(tx.Items()) != 1 {
		t.Fatalf("expected 1 item left, got %d", len(tx.Items()))
	}

	if _, err := tx.Find("a"); !errors.Is(err, itemdomain.ErrItemNotFound) {
		t.Fatalf("find removed: expected ErrItemNotFound, got %v", err)
	}
	if _, err := tx.Remove("a"); !errors.Is(err, itemdomain.ErrItemNotFound) {
		t.Fatalf("remove twice: expected ErrItemNotFound, got %v", err)
	}
}

func TestTx_HookOrder(t *testing.T) {
	tx := NewTx(nil)
	var got []string
	tx.OnCommit(func() { got = append(got, "c1") })
	tx.OnCommit(func() { got = append(got, "c2") })
	tx.OnRollback(func() { got = append(got, "r1") })
	tx.OnRollback(func() { got = append(got, "r2") })

	tx.Committed()
	tx.RolledBack()

	want := []string{"c1", "c2", "r2", "r1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
