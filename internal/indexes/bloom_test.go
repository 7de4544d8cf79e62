package indexes

import "testing"

func TestBloom_MightContainAfterAdd(t *testing.T) {
	b := NewBloom(1000, 0.01)
	b.Add("mem-1")
	if !b.MightContain("mem-1") {
		t.Fatal("expected MightContain true for added id")
	}
}

func TestBloom_NoFalseNegatives(t *testing.T) {
	b := NewBloom(100, 0.01)
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		b.Add(id)
	}
	for _, id := range ids {
		if !b.MightContain(id) {
			t.Fatalf("false negative for %q", id)
		}
	}
}

func TestBloom_SnapshotRoundTrip(t *testing.T) {
	b := NewBloom(100, 0.01)
	b.Add("mem-1")
	b.Add("mem-2")

	data, err := b.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := NewBloom(1, 0.5)
	if err := restored.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !restored.MightContain("mem-1") || !restored.MightContain("mem-2") {
		t.Fatal("restored filter lost membership")
	}
}
