// Package lua runs user scripts that choreograph the LED strip by issuing settings
// commands to the agent.
package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"ledstrip-remote/internal/core"
)

// stopTimeout bounds how long a new command waits for the previous script to exit.
const stopTimeout = 2 * time.Second

// cmdType defines the type of engine command.
type cmdType int

const (
	cmdRunFile cmdType = iota
	cmdRunString
	cmdStop
)

// engineCmd represents a command sent to the Lua engine.
type engineCmd struct {
	kind cmdType
	name string
	code string
}

// Engine manages the Lua scripting environment using a single worker goroutine
// to ensure only one pattern runs at a time.
type Engine struct {
	commands    core.CommandChannel
	patternsDir string
	eventBus    *core.EventBus
	log         logrus.FieldLogger

	cmdChan chan engineCmd
}

// NewEngine creates a new Lua engine and starts its background worker. Scripts
// talk to the strip only through commands.
func NewEngine(commands core.CommandChannel, patternsDir string, eb *core.EventBus, log logrus.FieldLogger) *Engine {
	e := &Engine{
		commands:    commands,
		patternsDir: patternsDir,
		eventBus:    eb,
		log:         log,
		cmdChan:     make(chan engineCmd, 10),
	}

	go e.runLoop()

	return e
}

// runLoop is the main worker loop that processes engine commands sequentially.
func (e *Engine) runLoop() {
	var currentCancel context.CancelFunc
	var scriptDone chan struct{}

	for cmd := range e.cmdChan {
		if currentCancel != nil {
			currentCancel()
			select {
			case <-scriptDone:
			case <-time.After(stopTimeout):
				e.log.Warn("Timeout waiting for script to stop")
			}
			currentCancel = nil
			scriptDone = nil
		}

		if cmd.kind == cmdStop {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		currentCancel = cancel
		scriptDone = make(chan struct{})

		go func(cmd engineCmd, ctx context.Context, done chan struct{}) {
			defer close(done)
			switch cmd.kind {
			case cmdRunFile:
				e.execute(ctx, cmd.name, func(L *lua.LState) error { return L.DoFile(cmd.code) })
			case cmdRunString:
				e.execute(ctx, cmd.name, func(L *lua.LState) error { return L.DoString(cmd.code) })
			}
		}(cmd, ctx, scriptDone)
	}
}

// Close stops the worker. The engine cannot be used afterwards.
func (e *Engine) Close() {
	e.StopCurrentPattern()
	close(e.cmdChan)
}

// StopCurrentPattern stops the currently running script if any.
func (e *Engine) StopCurrentPattern() {
	select {
	case e.cmdChan <- engineCmd{kind: cmdStop}:
	default:
		e.log.Warn("Command channel full, could not send stop command")
	}
}

// RunPattern queues a pattern file for execution, replacing any running script.
func (e *Engine) RunPattern(name string) error {
	scriptPath, err := e.GetPatternPath(name)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", name, err)
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return fmt.Errorf("pattern %q: %w", name, err)
	}

	e.cmdChan <- engineCmd{
		kind: cmdRunFile,
		name: name,
		code: scriptPath,
	}
	return nil
}

// ExecuteString queues a one-off Lua chunk for execution.
func (e *Engine) ExecuteString(code string) {
	e.cmdChan <- engineCmd{
		kind: cmdRunString,
		name: "inline",
		code: code,
	}
}

// sanitizeFilename checks for directory traversal and ensures a valid .lua extension.
func sanitizeFilename(name string) (string, error) {
	if !strings.HasSuffix(name, ".lua") {
		return "", fmt.Errorf("filename must end with .lua")
	}
	cleanName := filepath.Base(name)
	if cleanName != name || cleanName == ".lua" || strings.Contains(cleanName, "..") {
		return "", fmt.Errorf("invalid filename")
	}
	return cleanName, nil
}

// GetPatternPath returns the path to a pattern file within the patterns directory,
// creating the directory if needed.
func (e *Engine) GetPatternPath(name string) (string, error) {
	cleanName, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(e.patternsDir); os.IsNotExist(err) {
		e.log.Infof("Creating patterns directory: %s", e.patternsDir)
		if err := os.MkdirAll(e.patternsDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create patterns directory: %w", err)
		}
	}
	return filepath.Join(e.patternsDir, cleanName), nil
}

// GetPatternCode reads and returns the source code of a pattern file.
func (e *Engine) GetPatternCode(name string) (string, error) {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// SavePatternCode writes the provided Lua source code to a pattern file after
// checking that it compiles.
func (e *Engine) SavePatternCode(name, code string) error {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return err
	}
	L := lua.NewState()
	defer L.Close()
	if _, err := L.LoadString(code); err != nil {
		return fmt.Errorf("pattern %q does not compile: %w", name, err)
	}
	return os.WriteFile(path, []byte(code), 0644)
}

// DeletePattern removes a pattern file by name.
func (e *Engine) DeletePattern(name string) error {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// GetPatternList scans the patterns directory and returns a list of available .lua files.
func (e *Engine) GetPatternList() ([]string, error) {
	patterns := []string{}
	files, err := os.ReadDir(e.patternsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return patterns, nil
		}
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".lua" {
			patterns = append(patterns, file.Name())
		}
	}
	return patterns, nil
}

// execute runs Lua code in a fresh state bound to ctx and reports start and finish
// on the event bus.
func (e *Engine) execute(ctx context.Context, name string, executor func(*lua.LState) error) {
	e.log.Infof("Starting pattern '%s'...", name)
	e.publishRunning(name)

	defer func() {
		e.log.Infof("Pattern '%s' finished.", name)
		e.publishRunning("")
	}()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	e.registerGoFunctions(L, ctx)

	if err := executor(L); err != nil {
		if ctx.Err() == context.Canceled {
			e.log.Infof("Pattern '%s' execution was canceled.", name)
		} else {
			e.log.Errorf("Error executing pattern '%s': %v", name, err)
		}
	}
}

func (e *Engine) publishRunning(name string) {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(core.Event{
		Type:    core.PatternChangedEvent,
		Payload: map[string]interface{}{"running": name},
	})
}
