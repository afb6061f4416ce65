package webdataset

import (
	"reflect"
	"testing"
)

func TestBraceExpandAlternation(t *testing.T) {
	got, err := BraceExpand("/data/{a,b}.tar")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{"/data/a.tar", "/data/b.tar"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBraceExpandRange(t *testing.T) {
	got, err := BraceExpand("shard-{000008..000011}.tar")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{
		"shard-000008.tar",
		"shard-000009.tar",
		"shard-000010.tar",
		"shard-000011.tar",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBraceExpandNested(t *testing.T) {
	got, err := BraceExpand("{a,b{1..2}}.tar")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{"a.tar", "b1.tar", "b2.tar"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBraceExpandMultipleGroups(t *testing.T) {
	got, err := BraceExpand("{a,b}-{0..1}")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{"a-0", "a-1", "b-0", "b-1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBraceExpandNoBraces(t *testing.T) {
	got, err := BraceExpand("/data/plain.tar")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(got) != 1 || got[0] != "/data/plain.tar" {
		t.Fatalf("got %v", got)
	}
}

func TestBraceExpandUnmatched(t *testing.T) {
	if _, err := BraceExpand("{a,b.tar"); err == nil {
		t.Fatalf("expect error for unmatched '{'")
	}
	if _, err := BraceExpand("a}.tar"); err == nil {
		t.Fatalf("expect error for unmatched '}'")
	}
}

func TestBraceExpandNonRangeDots(t *testing.T) {
	// "a..z" is not numeric, falls back to a single alternative.
	got, err := BraceExpand("{a..z}")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(got) != 1 || got[0] != "a..z" {
		t.Fatalf("got %v", got)
	}
}
