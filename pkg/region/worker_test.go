// Copyright 2023 Greptime Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package region

import (
	"context"
	"testing"

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/objstore"
	"github.com/greptime/region-control/pkg/partition"
	"github.com/greptime/region-control/pkg/regionid"
	"github.com/greptime/region-control/pkg/scheduler"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	opener := RegionOpener{
		MemtableBuilder: &DefaultMemtableBuilder{},
		ObjStore:        objstore.NewMemStore(),
	}
	sched := scheduler.New("test", 2)
	t.Cleanup(func() {
		_ = sched.Stop(context.Background(), true)
	})
	return NewWorker("test-worker", opener, sched, 16)
}

func createTestRegion(t *testing.T, w *Worker, id regionid.RegionID, dir string) {
	t.Helper()
	err := w.Create(context.Background(), id, CreateRequest{
		RegionDir:         dir,
		Columns:           []ColumnMetadata{{Name: "id", DataType: "int64"}},
		PrimaryKey:        []string{"id"},
		CreateIfNotExists: false,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

// TestWorkerCreateCloseReopen is scenario 7: create, close, reopen, close
// twice.
func TestWorkerCreateCloseReopen(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t)
	id := regionid.NewRegionID(1, 1)
	dir := "regions/1/1"

	createTestRegion(t, w, id, dir)

	exists, err := w.IsRegionExists(ctx, id)
	if err != nil || !exists {
		t.Fatalf("IsRegionExists after create: exists=%v err=%v", exists, err)
	}

	if err := w.Close(ctx, id, CloseRequest{Flush: false}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	exists, err = w.IsRegionExists(ctx, id)
	if err != nil || exists {
		t.Fatalf("IsRegionExists after close: exists=%v err=%v", exists, err)
	}

	if err := w.Open(ctx, id, OpenRequest{RegionDir: dir}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	exists, err = w.IsRegionExists(ctx, id)
	if err != nil || !exists {
		t.Fatalf("IsRegionExists after reopen: exists=%v err=%v", exists, err)
	}

	if err := w.Close(ctx, id, CloseRequest{}); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(ctx, id, CloseRequest{}); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// TestWorkerCreateExistingFails is scenario 8: a second Create of the same
// region without create_if_not_exists fails with RegionExists.
func TestWorkerCreateExistingFails(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t)
	id := regionid.NewRegionID(1, 1)
	dir := "regions/1/1"

	createTestRegion(t, w, id, dir)

	err := w.Create(ctx, id, CreateRequest{RegionDir: dir, Columns: []ColumnMetadata{{Name: "id", DataType: "int64"}}})
	if err == nil {
		t.Fatal("expected RegionExists error, got nil")
	}
	if e, ok := err.(*errs.Error); !ok || e.Kind() != errs.KindRegionExists {
		t.Fatalf("expected KindRegionExists, got %v", err)
	}

	// create_if_not_exists=true makes the second Create a no-op success.
	err = w.Create(ctx, id, CreateRequest{RegionDir: dir, Columns: []ColumnMetadata{{Name: "id", DataType: "int64"}}, CreateIfNotExists: true})
	if err != nil {
		t.Fatalf("Create with create_if_not_exists: %v", err)
	}
}

func TestWorkerOpenMissingRegionFails(t *testing.T) {
	w := newTestWorker(t)
	err := w.Open(context.Background(), regionid.NewRegionID(1, 1), OpenRequest{RegionDir: "regions/1/1"})
	if err == nil {
		t.Fatal("expected RegionNotFound error, got nil")
	}
	if e, ok := err.(*errs.Error); !ok || e.Kind() != errs.KindRegionNotFound {
		t.Fatalf("expected KindRegionNotFound, got %v", err)
	}
}

func TestWorkerWriteRejectsUnopenedAndClosed(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t)
	id := regionid.NewRegionID(1, 1)

	err := w.Write(ctx, id, WriteRequest{KeyValues: KeyValues{Rows: []Row{{Values: []partition.Value{partition.Int64Value(1)}}}}})
	if e, ok := err.(*errs.Error); !ok || e.Kind() != errs.KindRegionNotFound {
		t.Fatalf("write on unopened region: expected KindRegionNotFound, got %v", err)
	}

	createTestRegion(t, w, id, "regions/1/1")
	if err := w.Write(ctx, id, WriteRequest{KeyValues: KeyValues{Rows: []Row{{Values: []partition.Value{partition.Int64Value(1)}}}}}); err != nil {
		t.Fatalf("write on open region: %v", err)
	}

	if err := w.Close(ctx, id, CloseRequest{Flush: true}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err = w.Write(ctx, id, WriteRequest{KeyValues: KeyValues{Rows: []Row{{Values: []partition.Value{partition.Int64Value(2)}}}}})
	if e, ok := err.(*errs.Error); !ok || e.Kind() != errs.KindRegionNotFound {
		t.Fatalf("write on closed region: expected KindRegionNotFound, got %v", err)
	}
}

func TestWorkerFlushPersistsRows(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	opener := RegionOpener{MemtableBuilder: &DefaultMemtableBuilder{}, ObjStore: store}
	sched := scheduler.New("flush-test", 1)
	t.Cleanup(func() { _ = sched.Stop(context.Background(), true) })
	w := NewWorker("flush-worker", opener, sched, 8)

	id := regionid.NewRegionID(1, 1)
	dir := "regions/1/1"
	createTestRegion(t, w, id, dir)

	if err := w.Write(ctx, id, WriteRequest{KeyValues: KeyValues{Rows: []Row{{Values: []partition.Value{partition.Int64Value(7)}}}}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(ctx, id, FlushRequest{}); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	paths, err := store.List(ctx, dir+"/data/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("expected at least one persisted blob after flush")
	}
}

// TestWorkerStopRejectsNewRequests checks the "Worker stop" invariant of
// §4.G and the scheduler-style testable property: after a worker is
// stopped, schedule/send fails with WorkerStopped.
func TestWorkerStopRejectsNewRequests(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t)
	id := regionid.NewRegionID(1, 1)
	createTestRegion(t, w, id, "regions/1/1")

	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	err := w.Create(ctx, regionid.NewRegionID(1, 2), CreateRequest{RegionDir: "regions/1/2", Columns: []ColumnMetadata{{Name: "id", DataType: "int64"}}})
	if e, ok := err.(*errs.Error); !ok || e.Kind() != errs.KindWorkerStopped {
		t.Fatalf("expected KindWorkerStopped after Stop, got %v", err)
	}
}

func TestWorkerCloseNonexistentIsOk(t *testing.T) {
	w := newTestWorker(t)
	if err := w.Close(context.Background(), regionid.NewRegionID(9, 9), CloseRequest{}); err != nil {
		t.Fatalf("closing a never-created region should be Ok, got %v", err)
	}
}
