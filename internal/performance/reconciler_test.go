package performance_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"transcripts/internal/performance"
	"transcripts/internal/store"
	"transcripts/pkg/models"
)

type failingStore struct{ err error }

func (f failingStore) Upsert(context.Context, models.PerformanceRecord) (models.PerformanceRecord, error) {
	return models.PerformanceRecord{}, f.err
}

func (f failingStore) FindByStudent(context.Context, string) ([]models.PerformanceRecord, error) {
	return nil, f.err
}

func id(year int, p string) models.PeriodIdentifier {
	return models.PeriodIdentifier{YearOfStudy: year, AcademicPeriod: p}
}

func gpa(v float64) models.GradeSignal {
	return models.GradeSignal{GPA: models.Float64(v)}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	Convey("Given a reconciler over an empty store", t, func() {
		s := store.NewMemory()
		r := performance.NewReconciler(s)

		Convey("A University student in year 3 gets every expected slot as pending", func() {
			report, err := r.Reconcile(ctx, "stu-1", "University of Nairobi", 3)
			So(err, ShouldBeNil)
			So(report.Institution, ShouldEqual, models.InstitutionUniversity)
			So(report.Periods, ShouldHaveLength, 6)

			want := []models.PeriodIdentifier{
				id(1, "Semester 1"), id(1, "Semester 2"),
				id(2, "Semester 1"), id(2, "Semester 2"),
				id(3, "Semester 1"), id(3, "Semester 2"),
			}
			for i, slot := range report.Periods {
				So(slot.PeriodIdentifier, ShouldResemble, want[i])
				So(slot.Status, ShouldEqual, models.StatusPending)
				So(slot.Pending(), ShouldBeTrue)
				So(slot.Expected, ShouldBeTrue)
				So(slot.Recorded, ShouldBeFalse)
				So(slot.GPA, ShouldBeNil)
				So(slot.RawAverage, ShouldBeNil)
				So(slot.MeanGrade, ShouldBeNil)
			}
			So(report.Years, ShouldBeEmpty)
		})

		Convey("A TVET student gets three terms per year", func() {
			report, err := r.Reconcile(ctx, "stu-2", "Kabete National Polytechnic TVET", 2)
			So(err, ShouldBeNil)
			So(report.Institution, ShouldEqual, models.InstitutionTVET)
			So(report.Periods, ShouldHaveLength, 6)
			So(report.Periods[2].AcademicPeriod, ShouldEqual, "Term 3")
		})

		Convey("Out of range years are clamped", func() {
			report, err := r.Reconcile(ctx, "stu-1", "University", 9)
			So(err, ShouldBeNil)
			So(report.YearOfStudy, ShouldEqual, 5)
			So(report.Periods, ShouldHaveLength, 10)
		})

		Convey("Recorded grades fill their slots and produce a trend", func() {
			for _, in := range []struct {
				id     models.PeriodIdentifier
				signal models.GradeSignal
			}{
				{id(1, "Semester 1"), gpa(3.0)},
				{id(1, "Semester 2"), gpa(3.0)},
				{id(2, "Semester 1"), gpa(3.5)},
				{id(2, "Semester 2"), models.GradeSignal{}},
			} {
				_, err := r.Upsert(ctx, "stu-1", in.id, in.signal, "doc")
				So(err, ShouldBeNil)
			}

			report, err := r.Reconcile(ctx, "stu-1", "University", 2)
			So(err, ShouldBeNil)
			So(report.Periods, ShouldHaveLength, 4)
			So(report.Periods[0].Recorded, ShouldBeTrue)
			So(report.Periods[0].Status, ShouldEqual, models.StatusComplete)
			So(report.Periods[3].Recorded, ShouldBeTrue)
			So(report.Periods[3].Status, ShouldEqual, models.StatusPending)

			So(report.Years, ShouldHaveLength, 2)
			So(report.Years[0].AverageGPA, ShouldEqual, 3.0)
			So(report.Years[0].Change, ShouldBeNil)
			So(report.Years[0].Direction, ShouldBeEmpty)
			So(report.Years[1].AverageGPA, ShouldEqual, 3.5)
			So(*report.Years[1].Change, ShouldEqual, 0.5)
			So(report.Years[1].Direction, ShouldEqual, performance.DirectionUp)
		})

		Convey("Optional periods follow their year and stray records are left out", func() {
			_, err := r.Upsert(ctx, "stu-3", id(1, "Attachment"), gpa(4.0), "doc-a")
			So(err, ShouldBeNil)
			_, err = r.Upsert(ctx, "stu-3", id(1, "Semester 1"), gpa(3.0), "doc-e")
			So(err, ShouldBeNil)
			_, err = r.Upsert(ctx, "stu-3", id(1, "Semester 3"), gpa(4.0), "doc-b")
			So(err, ShouldBeNil)
			_, err = r.Upsert(ctx, "stu-3", id(3, "Semester 1"), gpa(1.0), "doc-c")
			So(err, ShouldBeNil)
			_, err = r.Upsert(ctx, "stu-3", id(1, "Term 1"), gpa(1.0), "doc-d")
			So(err, ShouldBeNil)

			report, err := r.Reconcile(ctx, "stu-3", "University", 2)
			So(err, ShouldBeNil)
			So(report.Periods, ShouldHaveLength, 6)

			So(report.Periods[2].PeriodIdentifier, ShouldResemble, id(1, "Semester 3"))
			So(report.Periods[2].Expected, ShouldBeFalse)
			So(report.Periods[3].PeriodIdentifier, ShouldResemble, id(1, "Attachment"))
			So(report.Periods[4].PeriodIdentifier, ShouldResemble, id(2, "Semester 1"))

			So(report.Years, ShouldHaveLength, 1)
			So(report.Years[0].YearOfStudy, ShouldEqual, 1)
			So(report.Years[0].AverageGPA, ShouldEqual, 3.0)
		})

		Convey("A combined semester record does not weigh into the year average", func() {
			_, err := r.Upsert(ctx, "stu-5", id(1, "Semester 1"), gpa(3.0), "doc-a")
			So(err, ShouldBeNil)
			_, err = r.Upsert(ctx, "stu-5", id(1, "Semester 2"), gpa(4.0), "doc-b")
			So(err, ShouldBeNil)
			_, err = r.Upsert(ctx, "stu-5", id(1, "Semester 1&2"), gpa(1.0), "doc-c")
			So(err, ShouldBeNil)

			report, err := r.Reconcile(ctx, "stu-5", "University", 1)
			So(err, ShouldBeNil)
			So(report.Periods, ShouldHaveLength, 3)
			So(report.Periods[2].AcademicPeriod, ShouldEqual, "Semester 1&2")
			So(report.Periods[2].Recorded, ShouldBeTrue)
			So(report.Years, ShouldHaveLength, 1)
			So(report.Years[0].AverageGPA, ShouldEqual, 3.5)
		})

		Convey("An upsert replaces the record with the same key", func() {
			_, err := r.Upsert(ctx, "stu-4", id(1, "Semester 1"), gpa(2.0), "first")
			So(err, ShouldBeNil)
			stored, err := r.Upsert(ctx, "stu-4", id(1, "Semester 1"), gpa(4.5), "second")
			So(err, ShouldBeNil)
			So(stored.SourceDocumentID, ShouldEqual, "second")

			records, err := s.FindByStudent(ctx, "stu-4")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(*records[0].GPA, ShouldEqual, 4.5)
		})

		Convey("An empty student id is rejected", func() {
			_, err := r.Reconcile(ctx, " ", "University", 1)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a store that is down", t, func() {
		r := performance.NewReconciler(failingStore{err: store.ErrUnavailable})

		Convey("Reconcile and Upsert report the failure", func() {
			_, err := r.Reconcile(ctx, "stu-1", "University", 1)
			So(errors.Is(err, store.ErrUnavailable), ShouldBeTrue)

			_, err = r.Upsert(ctx, "stu-1", id(1, "Semester 1"), gpa(3), "doc")
			So(errors.Is(err, store.ErrUnavailable), ShouldBeTrue)
		})
	})
}

func TestAggregate(t *testing.T) {
	slot := func(year int, v *float64) performance.Slot {
		return performance.Slot{PerformanceRecord: models.PerformanceRecord{
			PeriodIdentifier: id(year, "Semester 1"),
			GradeSignal:      models.GradeSignal{GPA: v},
		}, Expected: true}
	}

	Convey("Given reconciled slots", t, func() {
		Convey("Years without a grade are skipped in the trend", func() {
			years := performance.Aggregate([]performance.Slot{
				slot(1, models.Float64(4.0)),
				slot(2, nil),
				slot(3, models.Float64(3.0)),
			})

			So(years, ShouldHaveLength, 2)
			So(years[1].YearOfStudy, ShouldEqual, 3)
			So(*years[1].Change, ShouldEqual, -1.0)
			So(years[1].Direction, ShouldEqual, performance.DirectionDown)
		})

		Convey("Equal averages are the same", func() {
			years := performance.Aggregate([]performance.Slot{
				slot(1, models.Float64(3.2)),
				slot(2, models.Float64(3.2)),
			})

			So(*years[1].Change, ShouldEqual, 0.0)
			So(years[1].Direction, ShouldEqual, performance.DirectionSame)
		})

		Convey("Averages are rounded to two decimals", func() {
			years := performance.Aggregate([]performance.Slot{
				slot(1, models.Float64(3.33)),
				slot(1, models.Float64(3.34)),
				slot(1, models.Float64(3.34)),
			})

			So(years[0].AverageGPA, ShouldEqual, 3.34)
		})

		Convey("No graded slots give no years", func() {
			So(performance.Aggregate([]performance.Slot{slot(1, nil)}), ShouldBeEmpty)
		})
	})
}
