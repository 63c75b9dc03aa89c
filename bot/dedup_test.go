package bot

import (
	"path/filepath"
	"testing"
)

func TestSeenLogMarkAndHas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.txt")
	s, err := OpenSeenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Has("m1") {
		t.Fatal("fresh log should not contain m1")
	}
	s.Mark("m1")
	s.Mark("m2")
	s.Mark("m1") // idempotent
	if !s.Has("m1") || !s.Has("m2") {
		t.Fatal("marked ids missing")
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
}

func TestSeenLogReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.txt")
	s, err := OpenSeenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Mark("a")
	s.Mark("b")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := OpenSeenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if !s2.Has("a") || !s2.Has("b") {
		t.Fatal("ids lost across restart")
	}
	s2.Mark("c")
	if s2.Len() != 3 {
		t.Fatalf("len = %d, want 3", s2.Len())
	}
}

func TestSeenLogEmptyID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.txt")
	s, err := OpenSeenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.Mark("")
	if s.Len() != 0 {
		t.Fatal("empty id must not be recorded")
	}
}
