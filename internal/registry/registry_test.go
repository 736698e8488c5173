package registry_test

import (
	"errors"
	"testing"

	"openmarket/internal/domain"
	"openmarket/internal/registry"
)

type fakeStore struct {
	groups []domain.CodeGroup
	err    error
}

func (s *fakeStore) ListAll() ([]domain.CodeGroup, error) { return s.groups, s.err }

func categoryGroup() domain.CodeGroup {
	return domain.CodeGroup{
		ID:    "productCategory",
		Title: "Product categories",
		Codes: []domain.CodeEntry{
			{Code: "PC0102", Value: "Decor", Parent: "PC01", Depth: 2, Sort: 2},
			{Code: "PC01", Value: "Living", Depth: 1, Sort: 1},
			{Code: "PC010201", Value: "Posters", Parent: "PC0102", Depth: 3, Sort: 1},
			{Code: "PC0101", Value: "Kitchen", Parent: "PC01", Depth: 2, Sort: 1},
			{Code: "PC02", Value: "Hobby", Depth: 1, Sort: 2},
		},
	}
}

func TestBuildNestedTree(t *testing.T) {
	roots := registry.BuildNested(categoryGroup().Codes)
	if len(roots) != 2 {
		t.Fatalf("want 2 roots, got %d", len(roots))
	}
	if roots[0].Code != "PC01" || roots[1].Code != "PC02" {
		t.Fatalf("roots out of order: %s, %s", roots[0].Code, roots[1].Code)
	}
	living := roots[0]
	if len(living.Sub) != 2 || living.Sub[0].Code != "PC0101" || living.Sub[1].Code != "PC0102" {
		t.Fatalf("PC01 children wrong: %+v", living.Sub)
	}
	decor := living.Sub[1]
	if len(decor.Sub) != 1 || decor.Sub[0].Code != "PC010201" {
		t.Fatalf("PC0102 children wrong: %+v", decor.Sub)
	}
}

func TestBuildNestedDropsOrphans(t *testing.T) {
	entries := append(categoryGroup().Codes, domain.CodeEntry{
		Code: "PC9901", Value: "Lost", Parent: "PC99", Depth: 2, Sort: 1,
	})
	roots := registry.BuildNested(entries)
	var walk func(ns []*registry.Node) bool
	walk = func(ns []*registry.Node) bool {
		for _, n := range ns {
			if n.Code == "PC9901" || walk(n.Sub) {
				return true
			}
		}
		return false
	}
	if walk(roots) {
		t.Fatal("orphan PC9901 should not appear in the tree")
	}
}

func TestBuildNestedFlatGroup(t *testing.T) {
	entries := []domain.CodeEntry{
		{Code: "OS020", Value: "payment completed", Sort: 2},
		{Code: "OS010", Value: "order placed", Sort: 1},
	}
	roots := registry.BuildNested(entries)
	if len(roots) != 2 {
		t.Fatalf("flat group should list every entry, got %d", len(roots))
	}
}

func TestRegistryLookupAndAttr(t *testing.T) {
	store := &fakeStore{groups: []domain.CodeGroup{
		categoryGroup(),
		{ID: "membershipClass", Title: "Membership classes", Codes: []domain.CodeEntry{
			{Code: "MC02", Value: "silver", Sort: 2, Extra: domain.Extra{"discountRate": 5}},
		}},
	}}
	reg := registry.New(store)
	if err := reg.Reload(); err != nil {
		t.Fatal(err)
	}

	if !reg.Has("PC010201") {
		t.Fatal("PC010201 should resolve after reload")
	}
	if v := reg.Value("MC02"); v != "silver" {
		t.Fatalf("MC02 value: %q", v)
	}
	if rate, ok := reg.Attr("MC02", "discountRate"); !ok || rate != 5 {
		t.Fatalf("MC02 discountRate: %v %v", rate, ok)
	}
	if _, ok := reg.Lookup("nope"); ok {
		t.Fatal("unknown code should not resolve")
	}
}

func TestReloadKeepsSnapshotOnStoreFailure(t *testing.T) {
	store := &fakeStore{groups: []domain.CodeGroup{categoryGroup()}}
	reg := registry.New(store)
	if err := reg.Reload(); err != nil {
		t.Fatal(err)
	}

	store.err = errors.New("db gone")
	if err := reg.Reload(); !errors.Is(err, domain.ErrRegistryUnavailable) {
		t.Fatalf("want ErrRegistryUnavailable, got %v", err)
	}
	if !reg.Has("PC01") {
		t.Fatal("previous snapshot must survive a failed reload")
	}
}

func TestFlatLastWins(t *testing.T) {
	store := &fakeStore{groups: []domain.CodeGroup{
		{ID: "a", Codes: []domain.CodeEntry{{Code: "X01", Value: "first"}}},
		{ID: "b", Codes: []domain.CodeEntry{{Code: "X01", Value: "second"}}},
	}}
	reg := registry.New(store)
	if err := reg.Reload(); err != nil {
		t.Fatal(err)
	}
	if v := reg.Value("X01"); v != "second" {
		t.Fatalf("later registration should win, got %q", v)
	}
}
