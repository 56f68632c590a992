package core

// CommandType defines the type of command being dispatched.
type CommandType string

const (
	CmdApplyPatch      CommandType = "applyPatch"
	CmdSendNow         CommandType = "sendNow"
	CmdApplyPreset     CommandType = "applyPreset"
	CmdSetMode         CommandType = "setMode"
	CmdSetHue          CommandType = "setHue"
	CmdSetLoop         CommandType = "setLoop"
	CmdLoopStep        CommandType = "loopStep"
	CmdRunPattern      CommandType = "runPattern"
	CmdStopPattern     CommandType = "stopPattern"
	CmdAddSchedule     CommandType = "addSchedule"
	CmdRemoveSchedule  CommandType = "removeSchedule"
	CmdGetPatternCode  CommandType = "getPatternCode"
	CmdSavePatternCode CommandType = "savePatternCode"
	CmdDeletePattern   CommandType = "deletePattern"
)

// Command is the envelope for incoming requests to change settings or perform actions.
// Payload values are either decoded JSON or, for in-process producers, typed values
// such as protocol.Patch.
type Command struct {
	Type    CommandType
	Payload map[string]interface{}
}

// CommandChannel is the single channel that the core Agent listens to for commands.
type CommandChannel chan Command
