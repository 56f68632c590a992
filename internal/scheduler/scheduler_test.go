package scheduler_test

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"

	"ledstrip-remote/internal/core"
	"ledstrip-remote/internal/protocol"
	. "ledstrip-remote/internal/scheduler"
)

var _ = Describe("ParseCommand", func() {
	DescribeTable("should turn schedule lines into commands",
		func(line string, want core.Command) {
			Expect(ParseCommand(line)).To(Equal(want))
		},
		Entry("preset", "preset Red Blue Saw",
			core.Command{Type: core.CmdApplyPreset, Payload: map[string]interface{}{"name": "Red Blue Saw"}}),
		Entry("mode", "mode Cylon",
			core.Command{Type: core.CmdSetMode, Payload: map[string]interface{}{"ledMode": "Cylon"}}),
		Entry("color mode", "color_mode Duo",
			core.Command{Type: core.CmdApplyPatch, Payload: map[string]interface{}{"patch": protocol.Patch{protocol.FieldColorMode: int(protocol.ColorDuo)}}}),
		Entry("brightness", "brightness 10",
			core.Command{Type: core.CmdApplyPatch, Payload: map[string]interface{}{"patch": protocol.Patch{protocol.FieldBrightness: 10}}}),
		Entry("set", "set paletteIndex 3",
			core.Command{Type: core.CmdApplyPatch, Payload: map[string]interface{}{"patch": protocol.Patch{protocol.FieldPaletteIndex: 3}}}),
		Entry("hue", "hue2 180",
			core.Command{Type: core.CmdSetHue, Payload: map[string]interface{}{"field": "h2", "degrees": 180.0}}),
		Entry("loop", "loop on",
			core.Command{Type: core.CmdSetLoop, Payload: map[string]interface{}{"on": true}}),
		Entry("pattern", "pattern sunrise.lua",
			core.Command{Type: core.CmdRunPattern, Payload: map[string]interface{}{"name": "sunrise.lua"}}),
		Entry("stop", "STOP", core.Command{Type: core.CmdStopPattern}),
		Entry("send", "send", core.Command{Type: core.CmdSendNow}),
	)

	DescribeTable("should reject malformed lines",
		func(line string) {
			_, err := ParseCommand(line)
			Expect(err).To(HaveOccurred())
		},
		Entry("empty", ""),
		Entry("unknown verb", "dance"),
		Entry("bad mode", "mode Disco"),
		Entry("bad number", "bpm fast"),
		Entry("bad field", "set speed 3"),
		Entry("loop value", "loop maybe"),
	)
})

var _ = Describe("Scheduler", func() {
	var (
		file     string
		commands core.CommandChannel
		sched    *Scheduler
	)

	BeforeEach(func() {
		file = filepath.Join(GinkgoT().TempDir(), "schedules.json")
		commands = make(core.CommandChannel, 4)
		log, _ := test.NewNullLogger()
		sched = NewScheduler(commands, file, log)
	})

	It("should persist schedules and reload them", func() {
		id, err := sched.Add("0 7 * * *", "preset Drop Wave")
		Expect(err).NotTo(HaveOccurred())
		Expect(sched.GetAll()).To(HaveKey(id))

		log, _ := test.NewNullLogger()
		reloaded := NewScheduler(commands, file, log)
		entries := reloaded.GetAll()
		Expect(entries).To(HaveLen(1))
		for _, e := range entries {
			Expect(e).To(Equal(ScheduleEntry{Spec: "0 7 * * *", Command: "preset Drop Wave"}))
		}
	})

	It("should refuse bad specs and commands", func() {
		_, err := sched.Add("every morning", "send")
		Expect(err).To(HaveOccurred())
		_, err = sched.Add("0 7 * * *", "dance")
		Expect(err).To(HaveOccurred())
		Expect(sched.GetAll()).To(BeEmpty())
	})

	It("should remove schedules", func() {
		id, err := sched.Add("0 7 * * *", "send")
		Expect(err).NotTo(HaveOccurred())
		Expect(sched.Remove(int(id))).To(Succeed())
		Expect(sched.GetAll()).To(BeEmpty())
		Expect(sched.Remove(int(id))).To(HaveOccurred())
	})

	It("should switch the loop timer and report changes", func() {
		Expect(sched.SetLoop(true, time.Minute)).To(BeTrue())
		Expect(sched.LoopEnabled()).To(BeTrue())
		Expect(sched.SetLoop(true, time.Minute)).To(BeFalse())
		Expect(sched.SetLoop(false, time.Minute)).To(BeTrue())
		Expect(sched.LoopEnabled()).To(BeFalse())
		Expect(sched.GetAll()).To(BeEmpty())
	})

	It("should push loop steps while running", func() {
		sched.Start()
		defer sched.Stop()
		_, err := sched.SetLoop(true, time.Second)
		Expect(err).NotTo(HaveOccurred())
		Eventually(commands, 3*time.Second).Should(Receive(Equal(core.Command{Type: core.CmdLoopStep})))
	})
})
