package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/platform/apperr"
	"fieldsync_backend/platform/logger"

	"github.com/google/uuid"
)

func newTestCoordinator(t *testing.T, store repository.Store, locker *fakeLocker) *Coordinator {
	t.Helper()
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	norm, err := NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	log := logger.New("test")
	engine := NewUpsertEngine(norm, log)
	reconciler := NewAdhocReconciler(locker, norm, nil, log, 0, 0)
	return NewCoordinator(store, registry, engine, reconciler, nil, log)
}

func mustRecord(t *testing.T, raw map[string]any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	return data
}

func workItemRecord(t *testing.T, id string, overrides map[string]any) json.RawMessage {
	raw := map[string]any{
		"entityType": "workitem",
		"id":         id,
		"identifier": "TASK",
		"jobdesc":    "fire extinguisher audit",
		"jobstatus":  "INPROGRESS",
	}
	for k, v := range overrides {
		raw[k] = v
	}
	return mustRecord(t, raw)
}

func attendanceRecord(t *testing.T, id string, overrides map[string]any) json.RawMessage {
	raw := map[string]any{
		"entityType": "peopleeventlog",
		"id":         id,
		"people_id":  uuid.NewString(),
		"bu_id":      uuid.NewString(),
		"client_id":  uuid.NewString(),
		"peventtype": "SELF",
	}
	for k, v := range overrides {
		raw[k] = v
	}
	return mustRecord(t, raw)
}

func TestProcessBatchNoRecords(t *testing.T) {
	c := newTestCoordinator(t, newMemStore(), &fakeLocker{})

	result, err := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if result.ReturnCode != 1 {
		t.Errorf("return code = %d, want 1", result.ReturnCode)
	}
	if result.Message != msgNothingSubmitted {
		t.Errorf("message = %q, want %q", result.Message, msgNothingSubmitted)
	}
	if result.Trace == "" {
		t.Error("trace is empty")
	}
}

func TestProcessBatchAllRecordsEmpty(t *testing.T) {
	c := newTestCoordinator(t, newMemStore(), &fakeLocker{})

	records := []json.RawMessage{
		json.RawMessage("null"),
		json.RawMessage("   "),
		json.RawMessage("{}"),
	}
	result, err := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, records)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if result.Message != msgAllEmpty {
		t.Errorf("message = %q, want %q", result.Message, msgAllEmpty)
	}
}

func TestProcessBatchAllRecordsInvalid(t *testing.T) {
	c := newTestCoordinator(t, newMemStore(), &fakeLocker{})

	records := []json.RawMessage{
		json.RawMessage("[1,2,3]"),
		json.RawMessage("42"),
	}
	result, err := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, records)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if result.Message != msgAllInvalid {
		t.Errorf("message = %q, want %q", result.Message, msgAllInvalid)
	}
}

func TestProcessBatchMixedEmptyAndInvalid(t *testing.T) {
	c := newTestCoordinator(t, newMemStore(), &fakeLocker{})

	records := []json.RawMessage{
		json.RawMessage("null"),
		json.RawMessage("\"scalar\""),
	}
	result, _ := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, records)
	if result.Message != msgAllInvalid {
		t.Errorf("message = %q, want %q", result.Message, msgAllInvalid)
	}
}

func TestProcessBatchUnknownMessageType(t *testing.T) {
	c := newTestCoordinator(t, newMemStore(), &fakeLocker{})

	records := []json.RawMessage{workItemRecord(t, "1669705480001", nil)}
	result, err := c.ProcessBatch(context.Background(), "bulk-upload", 1, records)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if result.ReturnCode != 1 {
		t.Errorf("return code = %d, want 1", result.ReturnCode)
	}
}

func TestInsertBatchIsIdempotent(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, &fakeLocker{})

	itemID := "1669705480100"
	detailID := "1669705480100-1"
	attID := "1669705480200"
	records := []json.RawMessage{
		workItemRecord(t, itemID, map[string]any{
			"remarks": "first pass",
			"details": []any{
				map[string]any{
					"jobneeddetailid": detailID,
					"question_id":     3,
					"answers":         "ok",
				},
			},
		}),
		attendanceRecord(t, attID, nil),
	}

	result, err := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, records)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if result.RecordCount != 2 || result.ReturnCode != 0 {
		t.Fatalf("first batch result = %+v", result)
	}

	// Same identifiers resubmitted: rows are rewritten, never duplicated.
	records[0] = workItemRecord(t, itemID, map[string]any{
		"remarks": "second pass",
		"details": []any{
			map[string]any{
				"jobneeddetailid": detailID,
				"question_id":     3,
				"answers":         "still ok",
			},
		},
	})
	result, err = c.ProcessBatch(context.Background(), MessageTypeInsert, 1, records)
	if err != nil {
		t.Fatalf("replayed batch: %v", err)
	}
	if result.RecordCount != 2 {
		t.Errorf("replay record count = %d, want 2", result.RecordCount)
	}
	if len(store.items) != 1 || len(store.details) != 1 || len(store.attendance) != 1 {
		t.Fatalf("rows duplicated: items=%d details=%d attendance=%d",
			len(store.items), len(store.details), len(store.attendance))
	}
	if got := store.items[itemID].Remarks; got != "second pass" {
		t.Errorf("remarks = %q, want the later submission to win", got)
	}
	if got := store.details[detailID].Answer; got != "still ok" {
		t.Errorf("detail answer = %q, want %q", got, "still ok")
	}
}

// Device identifiers are opaque strings, not UUIDs: short counters like
// "U1" from older firmware must persist and stay idempotent.
func TestInsertBatchAcceptsOpaqueDeviceIdentifiers(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, &fakeLocker{})

	record := json.RawMessage(`{"entityType":"workItem","id":"U1","jobDescription":"Inspect Panel A","details":[{"id":"D1","questionId":7,"answer":"OK"}]}`)

	result, err := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, []json.RawMessage{record})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.ReturnCode != 0 || result.RecordCount != 1 {
		t.Fatalf("result = %+v, want return code 0 and record count 1", result)
	}

	item, ok := store.items["U1"]
	if !ok {
		t.Fatal(`work item "U1" not persisted`)
	}
	if item.JobDescription != "Inspect Panel A" {
		t.Errorf("job description = %q", item.JobDescription)
	}
	detail, ok := store.details["D1"]
	if !ok {
		t.Fatal(`detail "D1" not persisted`)
	}
	if detail.WorkItemID != "U1" || detail.QuestionID != 7 || detail.Answer != "OK" {
		t.Errorf("detail = %+v", detail)
	}

	// Replaying the same identifiers rewrites, never duplicates.
	if _, err := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, []json.RawMessage{record}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(store.items) != 1 || len(store.details) != 1 {
		t.Fatalf("rows duplicated on replay: items=%d details=%d", len(store.items), len(store.details))
	}
}

func TestInsertBatchRollsBackOnIntegrityFailure(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, &fakeLocker{})

	ids := make([]string, 5)
	records := make([]json.RawMessage, 5)
	for i := range ids {
		ids[i] = fmt.Sprintf("166970548030%d", i)
		records[i] = workItemRecord(t, ids[i], nil)
	}
	store.conflictOn[ids[2]] = true

	result, err := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, records)
	if err != nil {
		t.Fatalf("integrity rollback is a classified outcome, got error %v", err)
	}
	if result.ReturnCode != 1 || result.RecordCount != 0 {
		t.Errorf("result = %+v, want return code 1 and record count 0", result)
	}
	if result.Message != msgBatchRolledBack {
		t.Errorf("message = %q, want %q", result.Message, msgBatchRolledBack)
	}
	if len(store.items) != 0 {
		t.Errorf("%d rows survived a rolled-back batch", len(store.items))
	}
}

func TestInsertBatchSystemFailurePropagates(t *testing.T) {
	store := newMemStore()
	store.failAll = true
	c := newTestCoordinator(t, store, &fakeLocker{})

	records := []json.RawMessage{workItemRecord(t, "1669705480001", nil)}
	result, err := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, records)
	if err == nil {
		t.Fatal("system failure should propagate for retry")
	}
	if result.ReturnCode != 1 {
		t.Errorf("return code = %d, want 1", result.ReturnCode)
	}
}

func TestInsertBatchSkipsMalformedRecordInTx(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, &fakeLocker{})

	goodID := "1669705480400"
	records := []json.RawMessage{
		// No identifier: validation failure recovered inside the tx.
		mustRecord(t, map[string]any{"entityType": "workitem", "jobdesc": "x"}),
		workItemRecord(t, goodID, nil),
	}

	result, err := c.ProcessBatch(context.Background(), MessageTypeInsert, 1, records)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.RecordCount != 1 {
		t.Errorf("record count = %d, want 1", result.RecordCount)
	}
	if _, ok := store.items[goodID]; !ok {
		t.Error("valid sibling was not persisted")
	}
	if !strings.Contains(result.Trace, "skipped") {
		t.Errorf("trace does not account for the skip: %q", result.Trace)
	}
}

func TestPerRecordBatchKeepsSiblingsOnIntegrityFailure(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, &fakeLocker{})

	ids := []string{"1669705480501", "1669705480502", "1669705480503"}
	records := make([]json.RawMessage, len(ids))
	for i, id := range ids {
		records[i] = workItemRecord(t, id, nil)
	}
	store.conflictOn[ids[1]] = true

	result, err := c.ProcessBatch(context.Background(), MessageTypeTaskTourUpdate, 1, records)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.ReturnCode != 0 {
		t.Errorf("return code = %d, want 0", result.ReturnCode)
	}
	if result.RecordCount != 2 {
		t.Errorf("record count = %d, want 2", result.RecordCount)
	}
	for _, id := range []string{ids[0], ids[2]} {
		if _, ok := store.items[id]; !ok {
			t.Errorf("sibling %s missing after one record failed", id)
		}
	}
	if _, ok := store.items[ids[1]]; ok {
		t.Error("conflicted record was persisted")
	}
}

func TestPerRecordBatchReturnsFirstSystemFailure(t *testing.T) {
	store := newMemStore()
	store.failAll = true
	c := newTestCoordinator(t, store, &fakeLocker{})

	records := []json.RawMessage{workItemRecord(t, "1669705480001", nil)}
	result, err := c.ProcessBatch(context.Background(), MessageTypeTaskTourUpdate, 1, records)
	if err == nil {
		t.Fatal("system failure should surface to the retry wrapper")
	}
	if result.ReturnCode != 1 {
		t.Errorf("return code = %d, want 1 when nothing persisted", result.ReturnCode)
	}
}

func TestPerRecordBatchRoutesAdhocThroughReconciler(t *testing.T) {
	store := newMemStore()
	locker := &fakeLocker{}
	c := newTestCoordinator(t, store, locker)

	scheduledID := "sched-route-1"
	store.items[scheduledID] = repository.WorkItem{
		ID:             scheduledID,
		IdentifierKind: repository.KindTask,
		Status:         repository.StatusAssigned,
	}

	records := []json.RawMessage{
		workItemRecord(t, "1669705480600", map[string]any{
			"identifier": "ADHOC",
			"scheduleId": scheduledID,
		}),
	}

	result, err := c.ProcessBatch(context.Background(), MessageTypeAdhoc, 5, records)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.RecordCount != 1 {
		t.Errorf("record count = %d, want 1", result.RecordCount)
	}
	if len(locker.acquired) != 1 {
		t.Fatalf("reconciler lease not taken: %v", locker.acquired)
	}
	if got := store.items[scheduledID].Status; got != repository.StatusInProgress {
		t.Errorf("scheduled status = %q, want %q", got, repository.StatusInProgress)
	}
}

func TestPerRecordBatchBusyRecordIsSkipped(t *testing.T) {
	store := newMemStore()
	locker := &fakeLocker{busy: true}
	c := newTestCoordinator(t, store, locker)

	scheduledID := "sched-route-2"
	store.items[scheduledID] = repository.WorkItem{
		ID:             scheduledID,
		IdentifierKind: repository.KindTask,
		Status:         repository.StatusAssigned,
	}
	plainID := "1669705480700"

	records := []json.RawMessage{
		workItemRecord(t, "1669705480800", map[string]any{
			"identifier": "ADHOC",
			"scheduleId": scheduledID,
		}),
		workItemRecord(t, plainID, nil),
	}

	result, err := c.ProcessBatch(context.Background(), MessageTypeAdhoc, 5, records)
	if err != nil {
		t.Fatalf("a busy record must not fail the batch: %v", err)
	}
	if result.ReturnCode != 0 {
		t.Errorf("return code = %d, want 0", result.ReturnCode)
	}
	if result.RecordCount != 1 {
		t.Errorf("record count = %d, want the non-busy sibling only", result.RecordCount)
	}
	if !strings.Contains(result.Trace, "busy") {
		t.Errorf("trace lacks the busy skip: %q", result.Trace)
	}
	if _, ok := store.items[plainID]; !ok {
		t.Error("sibling behind the busy record was not persisted")
	}
}
