package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/bson"

	"transcripts/pkg/models"
)

func record(student string, year int, period string, gpa *float64) models.PerformanceRecord {
	return models.PerformanceRecord{
		StudentID:        student,
		PeriodIdentifier: models.PeriodIdentifier{YearOfStudy: year, AcademicPeriod: period},
		GradeSignal:      models.GradeSignal{GPA: gpa},
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an in-memory store", t, func() {
		s := NewMemory()
		clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return clock }

		Convey("Upsert derives the status from the signal", func() {
			done, err := s.Upsert(ctx, record("stu-1", 1, "Semester 1", models.Float64(3.2)))
			So(err, ShouldBeNil)
			So(done.Status, ShouldEqual, models.StatusComplete)

			pending, err := s.Upsert(ctx, record("stu-1", 1, "Semester 2", nil))
			So(err, ShouldBeNil)
			So(pending.Status, ShouldEqual, models.StatusPending)
		})

		Convey("A second upsert with the same key replaces the first", func() {
			_, err := s.Upsert(ctx, record("stu-1", 2, "Semester 1", models.Float64(2.0)))
			So(err, ShouldBeNil)

			clock = clock.Add(time.Hour)
			replaced, err := s.Upsert(ctx, record("stu-1", 2, "Semester 1", models.Float64(4.5)))
			So(err, ShouldBeNil)

			So(s.Len(), ShouldEqual, 1)
			So(*replaced.GPA, ShouldEqual, 4.5)
			So(replaced.CreatedAt, ShouldEqual, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
			So(replaced.UpdatedAt, ShouldEqual, clock)

			records, err := s.FindByStudent(ctx, "stu-1")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(*records[0].GPA, ShouldEqual, 4.5)
		})

		Convey("FindByStudent returns only that student, ordered by year then period", func() {
			for _, r := range []models.PerformanceRecord{
				record("stu-1", 2, "Semester 2", nil),
				record("stu-2", 1, "Semester 1", nil),
				record("stu-1", 1, "Semester 2", nil),
				record("stu-1", 1, "Semester 1", nil),
			} {
				_, err := s.Upsert(ctx, r)
				So(err, ShouldBeNil)
			}

			records, err := s.FindByStudent(ctx, "stu-1")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 3)
			So(records[0].PeriodIdentifier, ShouldResemble, models.PeriodIdentifier{YearOfStudy: 1, AcademicPeriod: "Semester 1"})
			So(records[1].PeriodIdentifier, ShouldResemble, models.PeriodIdentifier{YearOfStudy: 1, AcademicPeriod: "Semester 2"})
			So(records[2].YearOfStudy, ShouldEqual, 2)

			none, err := s.FindByStudent(ctx, "nobody")
			So(err, ShouldBeNil)
			So(none, ShouldBeEmpty)
		})

		Convey("Records missing part of their key are rejected", func() {
			_, err := s.Upsert(ctx, record("", 1, "Semester 1", nil))
			So(errors.Is(err, ErrInvalidRecord), ShouldBeTrue)

			_, err = s.Upsert(ctx, record("stu-1", 0, "Semester 1", nil))
			So(errors.Is(err, ErrInvalidRecord), ShouldBeTrue)

			_, err = s.Upsert(ctx, record("stu-1", 1, " ", nil))
			So(errors.Is(err, ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("Concurrent upserts of one key leave a single record", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = s.Upsert(ctx, record("stu-9", 3, "Semester 1", models.Float64(float64(i%5))))
				}(i)
			}
			wg.Wait()

			So(s.Len(), ShouldEqual, 1)
		})

		Convey("A cancelled context is reported", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := s.Upsert(cancelled, record("stu-1", 1, "Semester 1", nil))
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestMongoDocuments(t *testing.T) {
	Convey("Given the Mongo update documents", t, func() {
		now := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
		grade := models.MeanGradeB
		rec := record("stu-1", 2, "Semester 1", models.Float64(4))
		rec.MeanGrade = &grade
		rec.SourceDocumentID = "doc-7"

		Convey("The upsert sets every field and stamps created_at on insert only", func() {
			update := upsertUpdate(rec, now).Map()

			set := update["$set"].(bson.D).Map()
			So(set["student_id"], ShouldEqual, "stu-1")
			So(set["year_of_study"], ShouldEqual, 2)
			So(set["academic_period"], ShouldEqual, "Semester 1")
			So(set["status"], ShouldEqual, models.StatusComplete)
			So(set["source_document_id"], ShouldEqual, "doc-7")
			So(set["updated_at"], ShouldEqual, now)
			So(set, ShouldNotContainKey, "created_at")

			onInsert := update["$setOnInsert"].(bson.D).Map()
			So(onInsert["created_at"], ShouldEqual, now)
		})

		Convey("A signal without a grade is stored as pending", func() {
			update := upsertUpdate(record("stu-1", 2, "Semester 2", nil), now).Map()
			So(update["$set"].(bson.D).Map()["status"], ShouldEqual, models.StatusPending)
		})

		Convey("The unique index covers the full key", func() {
			idx := uniqueIndex()
			So(*idx.Options.Name, ShouldEqual, UniqueIndexName)
			So(*idx.Options.Unique, ShouldBeTrue)
			So(idx.Keys.(bson.D), ShouldHaveLength, 3)
		})

		Convey("The filter selects by the full key", func() {
			filter := keyFilter(rec.Key()).Map()
			So(filter, ShouldHaveLength, 3)
			So(filter["academic_period"], ShouldEqual, "Semester 1")
		})
	})
}
