package service

import (
	"testing"
)

func TestNormalizeRenamesLegacyAliases(t *testing.T) {
	norm, err := NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	raw := map[string]any{
		"jobneedid":  "abc",
		"identifier": "TASK",
		"jobstatus":  "ASSIGNED",
		"jobdesc":    "gate check",
		"people_id":  "p1",
	}
	out := norm.Normalize(EntityWorkItem, 1, raw)

	want := map[string]string{
		"id":             "abc",
		"identifierKind": "TASK",
		"status":         "ASSIGNED",
		"jobDescription": "gate check",
		"performerId":    "p1",
	}
	for canonical, value := range want {
		if out[canonical] != value {
			t.Errorf("out[%q] = %v, want %q", canonical, out[canonical], value)
		}
	}
	for alias := range raw {
		if _, ok := out[alias]; ok {
			t.Errorf("alias %q survived normalization", alias)
		}
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	norm, err := NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	raw := map[string]any{"identifier": "ADHOC"}
	_ = norm.Normalize(EntityWorkItem, 1, raw)

	if _, ok := raw["identifier"]; !ok {
		t.Error("input map was mutated")
	}
}

func TestNormalizeVersionGating(t *testing.T) {
	norm, err := NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	raw := map[string]any{"scheduleId": "s1", "jobneedid": "j1"}

	// Version 4 clients predate the scheduleId alias.
	out := norm.Normalize(EntityWorkItem, 4, raw)
	if _, ok := out["scheduledId"]; ok {
		t.Error("version-5 alias applied to a version-4 client")
	}
	if out["id"] != "j1" {
		t.Errorf("out[id] = %v, want the version-1 alias applied", out["id"])
	}

	out = norm.Normalize(EntityWorkItem, 5, raw)
	if out["scheduledId"] != "s1" {
		t.Errorf("out[scheduledId] = %v, want s1", out["scheduledId"])
	}
}

func TestNormalizeClampsVersionFloor(t *testing.T) {
	norm, err := NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	out := norm.Normalize(EntityWorkItem, 0, map[string]any{"jobneedid": "j1"})
	if out["id"] != "j1" {
		t.Error("version 0 should still apply the version-1 mappings")
	}
}

func TestNormalizeLeavesCanonicalKeys(t *testing.T) {
	norm, err := NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	raw := map[string]any{"id": "canonical", "remarks": "kept"}
	out := norm.Normalize(EntityWorkItem, 5, raw)
	if out["id"] != "canonical" {
		t.Errorf("out[id] = %v, want canonical key untouched", out["id"])
	}
	if out["remarks"] != "kept" {
		t.Errorf("out[remarks] = %v", out["remarks"])
	}
}

func TestNormalizeUnknownEntityIsPassthrough(t *testing.T) {
	norm, err := NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	raw := map[string]any{"jobneedid": "j1"}
	out := norm.Normalize(EntityType("ledger"), 1, raw)
	if out["jobneedid"] != "j1" {
		t.Error("unknown entity should pass fields through unchanged")
	}
}
