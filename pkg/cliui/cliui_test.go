package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/quill/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("FormatDuration", func() {
		It("uses milliseconds below a second", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		})

		It("uses tenths of seconds above a second", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("Mark", func() {
		It("distinguishes success from failure", func() {
			Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
			Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
		})
	})

	Describe("Step", func() {
		It("returns the error of the wrapped function and prints the message", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")

			err := cliui.Step(&buf, "embedding article", func() error { return boom })
			Expect(err).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring("embedding article"))
		})
	})

	Describe("KeyValue", func() {
		It("prints a placeholder for empty values", func() {
			var buf bytes.Buffer
			cliui.KeyValue(&buf, 10, "cache.dir", "")
			Expect(buf.String()).To(ContainSubstring("cache.dir"))
			Expect(buf.String()).To(ContainSubstring("<not set>"))
		})
	})
})
