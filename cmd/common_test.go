package cmd

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestReadLimited(t *testing.T) {
	Convey("Given a size limit of 8 bytes", t, func() {
		Convey("Input at the limit is read whole", func() {
			data, err := readLimited(strings.NewReader("GPA: 3.1"), 8)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "GPA: 3.1")
		})

		Convey("Longer input is rejected instead of truncated", func() {
			data, err := readLimited(strings.NewReader("MEAN GRADE: B"), 8)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "too large")
			So(data, ShouldBeNil)
		})
	})
}

func TestRedactURI(t *testing.T) {
	Convey("Credentials are hidden from connection strings", t, func() {
		So(redactURI("mongodb://admin:secret@db:27017/transcripts"), ShouldEqual, "mongodb://***@db:27017/transcripts")
		So(redactURI("mongodb://db:27017"), ShouldEqual, "mongodb://db:27017")
		So(redactURI("not a uri"), ShouldEqual, "not a uri")
	})
}
