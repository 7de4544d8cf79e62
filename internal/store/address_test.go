package store

import (
	"testing"

	"github.com/kittclouds/recall/internal/errs"
)

func TestAddressIndex_PutThenGet(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenAddressIndex(dir)
	if err != nil {
		t.Fatalf("OpenAddressIndex: %v", err)
	}
	defer idx.Close()

	want := Address{Volume: "vol-0001", Offset: 128, Length: 64}
	if err := idx.Put("mem-1", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := idx.Get("mem-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestAddressIndex_GetMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenAddressIndex(dir)
	if err != nil {
		t.Fatalf("OpenAddressIndex: %v", err)
	}
	defer idx.Close()

	_, err = idx.Get("does-not-exist")
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestAddressIndex_Delete(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenAddressIndex(dir)
	if err != nil {
		t.Fatalf("OpenAddressIndex: %v", err)
	}
	defer idx.Close()

	if err := idx.Put("mem-1", Address{Volume: "vol-0001"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := idx.Delete("mem-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := idx.Get("mem-1"); !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}
