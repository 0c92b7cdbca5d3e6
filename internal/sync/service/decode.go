package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/platform/apperr"

	"github.com/google/uuid"
)

// Field readers for normalized records. Wire values arrive as the loose
// types encoding/json produces for map[string]any, so each reader accepts
// the JSON shapes devices actually send.

func getString(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func getBool(raw map[string]any, key string) bool {
	switch v := raw[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "1"
	}
	return false
}

func getInt64(raw map[string]any, key string) int64 {
	switch v := raw[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		var n int64
		_, _ = fmt.Sscan(v, &n)
		return n
	}
	return 0
}

func getFloat(raw map[string]any, key string) *float64 {
	switch v := raw[key].(type) {
	case float64:
		return &v
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return &f
		}
	case string:
		var f float64
		if _, err := fmt.Sscan(v, &f); err == nil {
			return &f
		}
	}
	return nil
}

// getID reads a device-generated record identifier. Identifiers are
// opaque strings; anything non-empty after trimming is accepted.
func getID(raw map[string]any, key string) (string, error) {
	s := getString(raw, key)
	if s == "" {
		return "", apperr.Validation(fmt.Sprintf("missing identifier field %q", key))
	}
	return s, nil
}

// getOptionalID tolerates absent, empty, and sentinel ("NONE") values,
// all meaning "no reference".
func getOptionalID(raw map[string]any, key string) *string {
	s := getString(raw, key)
	if s == "" || strings.EqualFold(s, "NONE") {
		return nil
	}
	return &s
}

// getUUID reads a server-assigned entity reference, which is always a
// UUID (performers, sites, business units).
func getUUID(raw map[string]any, key string) (uuid.UUID, error) {
	s := getString(raw, key)
	if s == "" {
		return uuid.UUID{}, apperr.Validation(fmt.Sprintf("missing identifier field %q", key))
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, apperr.Validation(fmt.Sprintf("field %q is not a valid identifier", key))
	}
	return id, nil
}

// getOptionalUUID tolerates absent, empty, and sentinel ("NONE") values,
// all meaning "no reference".
func getOptionalUUID(raw map[string]any, key string) *uuid.UUID {
	s := getString(raw, key)
	if s == "" || strings.EqualFold(s, "NONE") {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func getTime(raw map[string]any, key string) *time.Time {
	s := getString(raw, key)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func getJSON(raw map[string]any, key string) []byte {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// decodeWorkItem builds a WorkItem model from a normalized record.
func decodeWorkItem(raw map[string]any, now time.Time) (*repository.WorkItem, error) {
	id, err := getID(raw, "id")
	if err != nil {
		return nil, err
	}

	w := &repository.WorkItem{
		ID:             id,
		ParentID:       getOptionalID(raw, "parentId"),
		IdentifierKind: getString(raw, "identifierKind"),
		Status:         getString(raw, "status"),
		JobDescription: getString(raw, "jobDescription"),
		PlanStart:      getTime(raw, "planStart"),
		PlanEnd:        getTime(raw, "planEnd"),
		StartedAt:      getTime(raw, "startedAt"),
		EndedAt:        getTime(raw, "endedAt"),
		QuestionSetID:  getOptionalUUID(raw, "questionSetId"),
		PerformerID:    getOptionalUUID(raw, "performerId"),
		AssetID:        getOptionalUUID(raw, "assetId"),
		SiteID:         getOptionalUUID(raw, "siteId"),
		Remarks:        getString(raw, "remarks"),
		Alerts:         getBool(raw, "alerts"),
		OtherInfo:      getJSON(raw, "otherInfo"),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if w.IdentifierKind == "" {
		w.IdentifierKind = repository.KindTask
	}
	if w.Status == "" {
		w.Status = repository.StatusAssigned
	}
	return w, nil
}

// decodeWorkItemDetail builds a detail model from a normalized record.
// The parent reference may be overridden by the caller after the parent
// is resolved.
func decodeWorkItemDetail(raw map[string]any, now time.Time) (*repository.WorkItemDetail, error) {
	id, err := getID(raw, "id")
	if err != nil {
		return nil, err
	}

	d := &repository.WorkItemDetail{
		ID:         id,
		QuestionID: getInt64(raw, "questionId"),
		Answer:     getString(raw, "answer"),
		MinValue:   getFloat(raw, "minValue"),
		MaxValue:   getFloat(raw, "maxValue"),
		AlertOn:    getBool(raw, "alertOn"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if parent := getOptionalID(raw, "workItemId"); parent != nil {
		d.WorkItemID = *parent
	}
	return d, nil
}

// decodeAttendanceEvent builds an attendance event model from a
// normalized record.
func decodeAttendanceEvent(raw map[string]any, now time.Time) (*repository.AttendanceEvent, error) {
	id, err := getID(raw, "id")
	if err != nil {
		return nil, err
	}
	performerID, err := getUUID(raw, "performerId")
	if err != nil {
		return nil, err
	}
	siteID, err := getUUID(raw, "siteId")
	if err != nil {
		return nil, err
	}
	buID, err := getUUID(raw, "businessUnitId")
	if err != nil {
		return nil, err
	}

	return &repository.AttendanceEvent{
		ID:             id,
		PerformerID:    performerID,
		SiteID:         siteID,
		BusinessUnitID: buID,
		EventSubtype:   getString(raw, "eventSubtype"),
		PunchInAt:      getTime(raw, "punchInAt"),
		PunchOutAt:     getTime(raw, "punchOutAt"),
		StartLng:       getFloat(raw, "startLng"),
		StartLat:       getFloat(raw, "startLat"),
		EndLng:         getFloat(raw, "endLng"),
		EndLat:         getFloat(raw, "endLat"),
		VerifiedBy:     getOptionalUUID(raw, "verifiedBy"),
		OtherInfo:      getJSON(raw, "otherInfo"),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// rawChildMaps extracts a list field of child objects from a RAW record,
// before the parent is normalized. Non-object entries are dropped.
func rawChildMaps(raw map[string]any, key string) []map[string]any {
	list, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	children := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if child, ok := item.(map[string]any); ok {
			children = append(children, child)
		}
	}
	return children
}
