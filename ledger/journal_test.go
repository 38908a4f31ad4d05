package ledger

import "testing"

func TestJournalRecordsInOrder(t *testing.T) {
	j := NewJournal()
	var a, b [32]byte
	a[0], b[0] = 1, 2

	j.Transfer(a, 100)
	j.Transfer(b, 50)
	j.Transfer(a, 25)
	j.Burn(7)

	entries := j.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Amount != 100 || entries[1].Amount != 50 || entries[2].Amount != 25 {
		t.Errorf("entries out of order: %v", entries)
	}
	if j.TotalTo(a) != 125 {
		t.Errorf("TotalTo(a) = %d, want 125", j.TotalTo(a))
	}
	if j.TotalOut() != 175 {
		t.Errorf("TotalOut = %d, want 175", j.TotalOut())
	}
	if j.Burned() != 7 {
		t.Errorf("Burned = %d, want 7", j.Burned())
	}
}

func TestJournalReset(t *testing.T) {
	j := NewJournal()
	j.Transfer([32]byte{1}, 10)
	j.Burn(5)
	j.Reset()

	if len(j.Entries()) != 0 || j.Burned() != 0 {
		t.Errorf("journal not empty after Reset: %d entries, %d burned", len(j.Entries()), j.Burned())
	}
}
