package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the probe command", t, func() {
		cmd := newRootCommand()

		convey.Convey("Then the defaults cover both sources", func() {
			sources, err := cmd.Flags().GetStringSlice("source")
			convey.So(err, convey.ShouldBeNil)
			convey.So(sources, convey.ShouldResemble, []string{"telemetry", "ledger"})
		})

		convey.Convey("When the service returns errors", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/healthz" {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}))
			defer srv.Close()

			var out, errOut bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&errOut)
			cmd.SetArgs([]string{"--url", srv.URL, "--window", "1h", "--source", "ledger"})

			convey.Convey("Then the command fails and prints the report", func() {
				convey.So(cmd.Execute(), convey.ShouldNotBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, "ledger/1h")
				convey.So(out.String(), convey.ShouldContainSubstring, "status 500")
			})
		})
	})
}
