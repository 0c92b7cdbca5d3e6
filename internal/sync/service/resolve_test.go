package service

import (
	"testing"

	"fieldsync_backend/platform/apperr"
)

func TestResolveByWireName(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tests := []struct {
		name string
		want EntityType
	}{
		{"workitem", EntityWorkItem},
		{"jobneed", EntityWorkItem},
		{"WorkItem", EntityWorkItem},
		{"  jobneeddetail  ", EntityWorkItemDetail},
		{"workitemdetail", EntityWorkItemDetail},
		{"peopleeventlog", EntityAttendanceEvent},
		{"attendanceevent", EntityAttendanceEvent},
		{"workpermit", EntityWorkPermit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.Resolve(map[string]any{"entityType": tt.name})
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestResolveUnregisteredNameFailsLoudly(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	_, err = registry.Resolve(map[string]any{"entityType": "asset"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestResolveInfersFromShape(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tests := []struct {
		name    string
		raw     map[string]any
		want    EntityType
		wantErr bool
	}{
		{
			name: "details plus job description is a work item",
			raw:  map[string]any{"details": []any{}, "jobDescription": "patrol"},
			want: EntityWorkItem,
		},
		{
			name: "answer plus question id is a detail",
			raw:  map[string]any{"answer": "42", "questionId": float64(9)},
			want: EntityWorkItemDetail,
		},
		{
			name:    "details alone is ambiguous",
			raw:     map[string]any{"details": []any{}},
			wantErr: true,
		},
		{
			name:    "bare record is not inferable",
			raw:     map[string]any{"id": "x"},
			wantErr: true,
		},
		{
			name:    "blank entity type falls through to shape",
			raw:     map[string]any{"entityType": "  "},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.Resolve(tt.raw)
			if tt.wantErr {
				if !apperr.Is(err, apperr.KindValidation) {
					t.Fatalf("err = %v, want validation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}
