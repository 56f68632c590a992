package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"ledstrip-remote/internal/core"
	"ledstrip-remote/internal/protocol"
)

// ScheduleEntry defines the structure for a saved schedule.
type ScheduleEntry struct {
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

// Scheduler manages timed commands and the loop-mode timer.
type Scheduler struct {
	cron           *cron.Cron
	store          map[cron.EntryID]ScheduleEntry
	commandChannel core.CommandChannel
	mu             sync.RWMutex
	schedulesFile  string
	log            logrus.FieldLogger

	loopID cron.EntryID
}

// NewScheduler creates and loads a scheduler.
func NewScheduler(cmdChan core.CommandChannel, schedulesFile string, log logrus.FieldLogger) *Scheduler {
	s := &Scheduler{
		cron:           cron.New(),
		store:          make(map[cron.EntryID]ScheduleEntry),
		commandChannel: cmdChan,
		schedulesFile:  schedulesFile,
		log:            log,
	}
	s.load()
	return s
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Cron scheduler started.")
}

// Stop halts the cron job ticker.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Cron scheduler stopped.")
}

// Add creates a new cron job after checking that command parses.
func (s *Scheduler) Add(spec, command string) (cron.EntryID, error) {
	if _, err := ParseCommand(command); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		return 0, fmt.Errorf("invalid schedule spec %q: %w", spec, err)
	}
	s.store[id] = ScheduleEntry{Spec: spec, Command: command}
	s.save()
	s.log.Infof("Added schedule (ID %d): %s -> %s", id, spec, command)
	return id, nil
}

// Remove deletes a cron job.
func (s *Scheduler) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID := cron.EntryID(id)
	if _, ok := s.store[entryID]; !ok {
		return fmt.Errorf("no schedule with ID %d", id)
	}
	s.cron.Remove(entryID)
	delete(s.store, entryID)
	s.save()
	s.log.Infof("Removed schedule (ID %d)", id)
	return nil
}

// GetAll returns a copy of the current schedules in a thread-safe way.
func (s *Scheduler) GetAll() map[cron.EntryID]ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	newMap := make(map[cron.EntryID]ScheduleEntry, len(s.store))
	for k, v := range s.store {
		newMap[k] = v
	}
	return newMap
}

// SetLoop turns the loop-mode timer on or off. It reports whether the state changed.
// The loop timer is never persisted.
func (s *Scheduler) SetLoop(on bool, interval time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if on == (s.loopID != 0) {
		return false, nil
	}
	if !on {
		s.cron.Remove(s.loopID)
		s.loopID = 0
		s.log.Info("Loop timer stopped.")
		return true, nil
	}
	id, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.commandChannel <- core.Command{Type: core.CmdLoopStep}
	})
	if err != nil {
		return false, fmt.Errorf("loop timer: %w", err)
	}
	s.loopID = id
	s.log.Infof("Loop timer started, every %s.", interval)
	return true, nil
}

// LoopEnabled reports whether the loop timer is armed.
func (s *Scheduler) LoopEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loopID != 0
}

func (s *Scheduler) execute(command string) {
	s.log.Infof("Executing scheduled command: %s", command)
	cmd, err := ParseCommand(command)
	if err != nil {
		s.log.Warnf("Skipping scheduled command %q: %v", command, err)
		return
	}
	s.commandChannel <- cmd
}

// ParseCommand turns a schedule command line into a core command. Supported forms:
//
//	preset <name...>       mode <led mode>        color_mode <color mode>
//	brightness|bpm|intensity|option <n>           hue|hue2 <degrees>
//	set <field> <n>        loop on|off            pattern <file.lua>
//	stop                   send
func ParseCommand(command string) (core.Command, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return core.Command{}, fmt.Errorf("empty command")
	}
	verb, args := strings.ToLower(parts[0]), parts[1:]

	switch verb {
	case "preset":
		if len(args) == 0 {
			return core.Command{}, fmt.Errorf("preset needs a name")
		}
		return core.Command{Type: core.CmdApplyPreset, Payload: map[string]interface{}{"name": strings.Join(args, " ")}}, nil

	case "mode":
		if len(args) != 1 {
			return core.Command{}, fmt.Errorf("mode needs one led mode name")
		}
		if _, err := protocol.ParseLedMode(args[0]); err != nil {
			return core.Command{}, err
		}
		return core.Command{Type: core.CmdSetMode, Payload: map[string]interface{}{"ledMode": args[0]}}, nil

	case "color_mode":
		if len(args) != 1 {
			return core.Command{}, fmt.Errorf("color_mode needs one color mode name")
		}
		m, err := protocol.ParseColorMode(args[0])
		if err != nil {
			return core.Command{}, err
		}
		return patchCommand(protocol.Patch{protocol.FieldColorMode: int(m)}), nil

	case "brightness", "bpm", "intensity", "option":
		field := map[string]protocol.Field{
			"brightness": protocol.FieldBrightness,
			"bpm":        protocol.FieldBPM,
			"intensity":  protocol.FieldIntensity,
			"option":     protocol.FieldModeOption,
		}[verb]
		v, err := singleInt(verb, args)
		if err != nil {
			return core.Command{}, err
		}
		return patchCommand(protocol.Patch{field: v}), nil

	case "hue", "hue2":
		if len(args) != 1 {
			return core.Command{}, fmt.Errorf("%s needs degrees", verb)
		}
		deg, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return core.Command{}, fmt.Errorf("%s: %w", verb, err)
		}
		field := protocol.FieldHue
		if verb == "hue2" {
			field = protocol.FieldHue2
		}
		return core.Command{Type: core.CmdSetHue, Payload: map[string]interface{}{"field": string(field), "degrees": deg}}, nil

	case "set":
		if len(args) != 2 {
			return core.Command{}, fmt.Errorf("set needs a field and a value")
		}
		field, err := protocol.ParseField(args[0])
		if err != nil {
			return core.Command{}, err
		}
		v, err := singleInt("set", args[1:])
		if err != nil {
			return core.Command{}, err
		}
		return patchCommand(protocol.Patch{field: v}), nil

	case "loop":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return core.Command{}, fmt.Errorf("loop needs on or off")
		}
		return core.Command{Type: core.CmdSetLoop, Payload: map[string]interface{}{"on": args[0] == "on"}}, nil

	case "pattern":
		if len(args) != 1 {
			return core.Command{}, fmt.Errorf("pattern needs a file name")
		}
		return core.Command{Type: core.CmdRunPattern, Payload: map[string]interface{}{"name": args[0]}}, nil

	case "stop":
		return core.Command{Type: core.CmdStopPattern}, nil

	case "send":
		return core.Command{Type: core.CmdSendNow}, nil
	}
	return core.Command{}, fmt.Errorf("unknown command %q", verb)
}

func patchCommand(p protocol.Patch) core.Command {
	return core.Command{Type: core.CmdApplyPatch, Payload: map[string]interface{}{"patch": p}}
}

func singleInt(verb string, args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s needs one number", verb)
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", verb, err)
	}
	return v, nil
}

func (s *Scheduler) save() {
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		s.log.Errorf("Error marshalling schedules: %v", err)
		return
	}
	if err := os.WriteFile(s.schedulesFile, data, 0644); err != nil {
		s.log.Errorf("Error writing schedule file: %v", err)
	}
}

func (s *Scheduler) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Errorf("Error reading schedule file: %v", err)
		}
		return
	}

	tempStore := make(map[cron.EntryID]ScheduleEntry)
	if err := json.Unmarshal(data, &tempStore); err != nil {
		s.log.Errorf("Error unmarshalling schedule file: %v", err)
		return
	}

	s.log.Infof("Loading %d schedules from file '%s'...", len(tempStore), s.schedulesFile)
	for _, entry := range tempStore {
		jobEntry := entry
		newID, err := s.cron.AddFunc(jobEntry.Spec, func() { s.execute(jobEntry.Command) })
		if err != nil {
			s.log.Errorf("Error re-adding schedule from file: %v", err)
			continue
		}
		s.store[newID] = jobEntry
	}
}
