package ingest

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"transcripts/pkg/models"
)

func TestNotificationPolicy(t *testing.T) {
	Convey("Given a processed task", t, func() {
		task := Task{
			DocumentID:     "doc-1",
			StudentID:      "stu-1",
			YearOfStudy:    2,
			AcademicPeriod: "Semester 1",
			DocumentType:   models.DocumentTypeTranscript,
		}
		complete := &models.PerformanceRecord{Status: models.StatusComplete}
		pending := &models.PerformanceRecord{Status: models.StatusPending}

		Convey("A disabled policy sends nothing", func() {
			So(NotificationPolicy{}.events(task, complete), ShouldBeEmpty)
		})

		Convey("New documents are announced whatever their status", func() {
			p := NotificationPolicy{OnNewDocument: true, Recipient: "admin@example.com"}

			events := p.events(task, pending)
			So(events, ShouldHaveLength, 1)
			So(events[0].Kind, ShouldEqual, EventDocumentUploaded)
			So(events[0].Recipient, ShouldEqual, "admin@example.com")
			So(events[0].Period, ShouldResemble, models.PeriodIdentifier{YearOfStudy: 2, AcademicPeriod: "Semester 1"})

			So(p.events(task, nil), ShouldHaveLength, 1)
		})

		Convey("Completion is announced only for complete records", func() {
			p := NotificationPolicy{OnComplete: true}

			So(p.events(task, pending), ShouldBeEmpty)
			So(p.events(task, nil), ShouldBeEmpty)

			events := p.events(task, complete)
			So(events, ShouldHaveLength, 1)
			So(events[0].Kind, ShouldEqual, EventPerformanceComplete)
		})

		Convey("The log notifier never fails", func() {
			So(NewLogNotifier().Notify(context.Background(), Event{Kind: EventDocumentUploaded, StudentID: "stu-1"}), ShouldBeNil)
		})
	})
}
