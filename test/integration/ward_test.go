//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/bed"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/revisit"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/reporting"
	"github.com/hms/hms/pkg/dates"
)

func TestBedAllocationLifecycle(t *testing.T) {
	tenantID := createTenant(t, "ward")
	patients := patient.NewService(patient.NewRepo(globalPool), "UH")
	beds := bed.NewService(bed.NewBedRepo(globalPool), bed.NewAllocationRepo(globalPool), db.PgTxRunner{}, zerolog.Nop())

	withTenant(t, tenantID, func(ctx context.Context) {
		ana := registerPatient(t, ctx, patients, "Ana", "9800000100")
		om := registerPatient(t, ctx, patients, "Om", "9800000101")

		b1 := &bed.Bed{BedNumber: "G-01", Ward: "General", DailyRate: 1500}
		b2 := &bed.Bed{BedNumber: "G-02", Ward: "General", DailyRate: 1500}
		for _, b := range []*bed.Bed{b1, b2} {
			if err := beds.CreateBed(ctx, b); err != nil {
				t.Fatalf("CreateBed %s: %v", b.BedNumber, err)
			}
		}

		alloc, err := beds.Allocate(ctx, bed.AllocateRequest{BedID: b1.ID, PatientID: ana.ID})
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if _, err := beds.Allocate(ctx, bed.AllocateRequest{BedID: b1.ID, PatientID: om.ID}); !errors.Is(err, bed.ErrBedOccupied) {
			t.Errorf("expected ErrBedOccupied, got %v", err)
		}
		if _, err := beds.Allocate(ctx, bed.AllocateRequest{BedID: b2.ID, PatientID: ana.ID}); !errors.Is(err, bed.ErrPatientAdmitted) {
			t.Errorf("expected ErrPatientAdmitted, got %v", err)
		}

		occ, err := beds.Occupancy(ctx)
		if err != nil {
			t.Fatalf("Occupancy: %v", err)
		}
		if occ.Overall.Total != 2 || occ.Overall.Occupied != 1 || occ.Overall.OccupancyPercent != 50 {
			t.Errorf("unexpected occupancy %+v", occ.Overall)
		}

		moved, err := beds.Transfer(ctx, alloc.ID, b2.ID, nil)
		if err != nil {
			t.Fatalf("Transfer: %v", err)
		}
		if moved.BedID != b2.ID {
			t.Errorf("expected transfer to %s, got %s", b2.ID, moved.BedID)
		}
		freed, err := beds.GetBed(ctx, b1.ID)
		if err != nil {
			t.Fatalf("GetBed: %v", err)
		}
		if freed.Status != bed.StatusAvailable {
			t.Errorf("expected source bed available after transfer, got %s", freed.Status)
		}

		done, err := beds.Discharge(ctx, moved.ID)
		if err != nil {
			t.Fatalf("Discharge: %v", err)
		}
		if done.Status != bed.AllocationDischarged || done.DischargedAt == nil {
			t.Errorf("expected discharged allocation, got %+v", done)
		}
		if _, err := beds.Discharge(ctx, moved.ID); !errors.Is(err, bed.ErrAllocationClosed) {
			t.Errorf("expected ErrAllocationClosed on second discharge, got %v", err)
		}
	})
}

func TestRevisitFollowUps(t *testing.T) {
	tenantID := createTenant(t, "rev")
	patients := patient.NewService(patient.NewRepo(globalPool), "UH")
	revisits := revisit.NewService(revisit.NewRepo(globalPool), zerolog.Nop())
	today := dates.Today()

	withTenant(t, tenantID, func(ctx context.Context) {
		p := registerPatient(t, ctx, patients, "Lata", "9800000200")

		overdue := &revisit.Revisit{PatientID: p.ID, VisitDate: today.AddDays(-10), FollowUpDate: today.AddDays(-3), Reason: ptrStr("Fever")}
		upcoming := &revisit.Revisit{PatientID: p.ID, VisitDate: today, FollowUpDate: today.AddDays(2), Reason: ptrStr("fever ")}
		for _, v := range []*revisit.Revisit{overdue, upcoming} {
			if err := revisits.Record(ctx, v); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}

		orphan := &revisit.Revisit{PatientID: uuid.New(), VisitDate: today}
		if err := revisits.Record(ctx, orphan); !errors.Is(err, revisit.ErrPatientNotFound) {
			t.Errorf("expected ErrPatientNotFound, got %v", err)
		}

		due, err := revisits.Upcoming(ctx, today, 7)
		if err != nil {
			t.Fatalf("Upcoming: %v", err)
		}
		if len(due) != 1 || due[0].ID != upcoming.ID {
			t.Errorf("expected only the upcoming follow-up, got %v", due)
		}

		n, err := revisits.MarkMissed(ctx, today)
		if err != nil {
			t.Fatalf("MarkMissed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 missed follow-up, got %d", n)
		}

		done, err := revisits.Complete(ctx, upcoming.ID, ptrStr("recovered"))
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if done.Status != revisit.StatusCompleted {
			t.Errorf("expected completed, got %s", done.Status)
		}
		if _, err := revisits.Complete(ctx, overdue.ID, nil); !errors.Is(err, revisit.ErrNotScheduled) {
			t.Errorf("expected ErrNotScheduled for a missed follow-up, got %v", err)
		}

		count, err := revisits.CountToday(ctx)
		if err != nil {
			t.Fatalf("CountToday: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 visit today, got %d", count)
		}

		st, err := revisits.Stats(ctx, dates.Date{}, dates.Date{})
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if st.Total != 2 || st.Missed != 1 || st.Completed != 1 || st.DistinctPatients != 1 {
			t.Errorf("unexpected stats %+v", st)
		}
		if len(st.TopReasons) != 1 || st.TopReasons[0].Count != 2 {
			t.Errorf("expected reasons merged case-insensitively, got %+v", st.TopReasons)
		}
	})
}

func TestBedOccupancyMeasureCorrectsStaleStatus(t *testing.T) {
	tenantID := createTenant(t, "occ")
	patients := patient.NewService(patient.NewRepo(globalPool), "UH")
	beds := bed.NewService(bed.NewBedRepo(globalPool), bed.NewAllocationRepo(globalPool), db.PgTxRunner{}, zerolog.Nop())

	withTenant(t, tenantID, func(ctx context.Context) {
		stale := &bed.Bed{BedNumber: "I-01", Ward: "ICU", Status: bed.StatusOccupied, DailyRate: 5000}
		held := &bed.Bed{BedNumber: "I-02", Ward: "ICU", DailyRate: 5000}
		for _, b := range []*bed.Bed{stale, held} {
			if err := beds.CreateBed(ctx, b); err != nil {
				t.Fatalf("CreateBed %s: %v", b.BedNumber, err)
			}
		}
		p := registerPatient(t, ctx, patients, "Ira", "9800000300")
		if _, err := beds.Allocate(ctx, bed.AllocateRequest{BedID: held.ID, PatientID: p.ID}); err != nil {
			t.Fatalf("Allocate: %v", err)
		}

		var total, occupied, available int64
		err := db.From(ctx, globalPool).QueryRow(ctx,
			"SELECT total, occupied, available FROM ("+reporting.FindMeasure("bed-occupancy-by-ward").SQL+") r WHERE ward = 'ICU'",
		).Scan(&total, &occupied, &available)
		if err != nil {
			t.Fatalf("measure query: %v", err)
		}
		if total != 2 || occupied != 1 || available != 1 {
			t.Errorf("expected 2 beds with 1 occupied and 1 available, got total=%d occupied=%d available=%d", total, occupied, available)
		}
	})
}
