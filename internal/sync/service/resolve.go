package service

import (
	"fmt"
	"sort"
	"strings"

	"fieldsync_backend/platform/apperr"
)

// EntityType is the canonical type of a wire record.
type EntityType string

const (
	EntityWorkItem        EntityType = "workItem"
	EntityWorkItemDetail  EntityType = "workItemDetail"
	EntityAttendanceEvent EntityType = "attendanceEvent"
	EntityWorkPermit      EntityType = "workPermit"
)

// Registry maps wire "table name" strings to canonical entity types. It is
// a closed set built at startup; an unrecognized name is a loud
// validation failure, never a silent no-match.
type Registry struct {
	byName map[string]EntityType
}

// defaultWireNames covers both the current wire names and the legacy
// table names older device builds still send.
var defaultWireNames = map[string]EntityType{
	"workitem":        EntityWorkItem,
	"jobneed":         EntityWorkItem,
	"workitemdetail":  EntityWorkItemDetail,
	"jobneeddetail":   EntityWorkItemDetail,
	"attendanceevent": EntityAttendanceEvent,
	"peopleeventlog":  EntityAttendanceEvent,
	"workpermit":      EntityWorkPermit,
}

// NewRegistry builds the closed wire-name registry. It fails when a wire
// name maps to an unknown entity type, so a bad registration is caught at
// startup rather than at the first matching record.
func NewRegistry() (*Registry, error) {
	known := map[EntityType]bool{
		EntityWorkItem:        true,
		EntityWorkItemDetail:  true,
		EntityAttendanceEvent: true,
		EntityWorkPermit:      true,
	}

	byName := make(map[string]EntityType, len(defaultWireNames))
	names := make([]string, 0, len(defaultWireNames))
	for name := range defaultWireNames {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		et := defaultWireNames[name]
		if !known[et] {
			return nil, fmt.Errorf("registry: wire name %q maps to unknown entity type %q", name, et)
		}
		byName[name] = et
	}

	return &Registry{byName: byName}, nil
}

// Resolve determines the canonical entity type of a raw wire record.
// When the record names its type, the name must be registered. When it
// does not, the type is inferred from shape: details + jobDescription
// means a work item, answer + questionId means a detail row.
func (r *Registry) Resolve(raw map[string]any) (EntityType, error) {
	if name, ok := raw["entityType"].(string); ok && strings.TrimSpace(name) != "" {
		et, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return "", apperr.Validation(fmt.Sprintf("unrecognized entity type %q", name))
		}
		return et, nil
	}

	_, hasDetails := raw["details"]
	_, hasJobDescription := raw["jobDescription"]
	if hasDetails && hasJobDescription {
		return EntityWorkItem, nil
	}

	_, hasAnswer := raw["answer"]
	_, hasQuestionID := raw["questionId"]
	if hasAnswer && hasQuestionID {
		return EntityWorkItemDetail, nil
	}

	return "", apperr.Validation("entity type absent and not inferable from record shape")
}
