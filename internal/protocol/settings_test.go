package protocol_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "ledstrip-remote/internal/protocol"
)

var _ = Describe("Settings", func() {
	Describe("Clamp8", func() {
		DescribeTable("should round half up and clamp",
			func(in float64, out int) {
				Expect(Clamp8(in)).To(Equal(out))
			},
			Entry("negative", -5.0, 0),
			Entry("in range", 127.4, 127),
			Entry("half", 127.5, 128),
			Entry("too large", 300.0, 255),
			Entry("NaN", math.NaN(), 0),
		)
	})

	Describe("hue conversion", func() {
		It("should map degrees onto the compressed device circle", func() {
			Expect(HueFromDegrees(0)).To(Equal(0))
			Expect(HueFromDegrees(180)).To(Equal(138))
			Expect(HueFromDegrees(360)).To(Equal(255))
		})

		It("should convert device units back to degrees", func() {
			Expect(HueToDegrees(255)).To(BeNumerically("~", 360, 0.001))
			Expect(HueToDegrees(0)).To(BeZero())
		})
	})

	Describe("Merge", func() {
		It("should return a new record and leave the original alone", func() {
			orig := DefaultSettings()
			next := orig.Merge(Patch{FieldBPM: 100})
			Expect(next.BPM).To(Equal(100))
			Expect(orig.BPM).To(Equal(123))
		})
	})

	Describe("Validate", func() {
		It("should accept the defaults", func() {
			Expect(DefaultSettings().Validate()).To(Succeed())
		})

		It("should reject values outside the UI ranges", func() {
			err := DefaultSettings().Merge(Patch{FieldBPM: 60, FieldBrightness: 0}).Validate()
			Expect(err).To(MatchError(ContainSubstring(`bpm 60`)))
			Expect(err).To(MatchError(ContainSubstring(`brightness 0`)))
		})
	})

	Describe("ParsePatch", func() {
		It("should accept numbers, booleans and mode names", func() {
			p, err := ParsePatch(map[string]interface{}{
				"bpm":            120.0,
				"sendLedsSocket": false,
				"ledMode":        "Strobe",
				"colorMode":      "duo",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(Equal(Patch{
				FieldBPM: 120, FieldSendLedsSocket: 0,
				FieldLedMode: int(LedStrobe), FieldColorMode: int(ColorDuo),
			}))
		})

		It("should reject unknown fields", func() {
			_, err := ParsePatch(map[string]interface{}{"speed": 1.0})
			Expect(err).To(MatchError(ErrUnknownField))
		})

		It("should reject unknown mode names", func() {
			_, err := ParsePatch(map[string]interface{}{"ledMode": "Disco"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Patch", func() {
		It("should print fields in canonical order", func() {
			Expect(Patch{FieldHue: 1, FieldLedMode: 2}.String()).To(Equal(`{ledMode=2 h=1}`))
		})
	})
})
