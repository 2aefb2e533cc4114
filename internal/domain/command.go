package domain

// CommandType names an inbound command.
type CommandType string

const (
	CommandJoin         CommandType = "JOIN"
	CommandStart        CommandType = "START"
	CommandStartTrading CommandType = "START_TRADING"
	CommandSubmitOrder  CommandType = "SUBMIT_ORDER"
	CommandPlayerDone   CommandType = "PLAYER_DONE"
	CommandForceClose   CommandType = "FORCE_CLOSE"
	CommandProcessRound CommandType = "PROCESS_ROUND"
	CommandAdvanceRound CommandType = "ADVANCE_ROUND"

	// Internal commands, never accepted from the wire.
	CommandDeadline   CommandType = "DEADLINE"
	CommandDisconnect CommandType = "DISCONNECT"
)

// Command is the tagged union of everything the game state machine accepts.
type Command interface {
	Type() CommandType
	Issuer() string
}

// JoinCommand registers a player, or marks an existing one online again.
type JoinCommand struct {
	PlayerID   string
	PlayerName string
	IsMonitor  bool
}

// StartCommand leaves the lobby. WithSetup stops in the SETUP phase first.
type StartCommand struct {
	PlayerID  string
	WithSetup bool
}

// StartTradingCommand moves from SETUP to TRADING.
type StartTradingCommand struct {
	PlayerID string
}

// SubmitOrderCommand places a limit order for the current round.
type SubmitOrderCommand struct {
	PlayerID string
	Stock    string
	Side     Side
	Price    int64
	Quantity int64
}

// PlayerDoneCommand marks the player finished for the round.
type PlayerDoneCommand struct {
	PlayerID string
}

// ForceCloseCommand closes the round early on behalf of everyone.
type ForceCloseCommand struct {
	PlayerID string
}

// ProcessRoundCommand runs the clearing pipeline once every player is done.
type ProcessRoundCommand struct {
	PlayerID string
}

// AdvanceRoundCommand starts the next round or finishes the game.
type AdvanceRoundCommand struct {
	PlayerID string
}

// DeadlineCommand is posted by the round timer when it elapses.
type DeadlineCommand struct {
	Round int
}

// DisconnectCommand is posted by the transport when a connection goes away.
type DisconnectCommand struct {
	PlayerID string
}

func (JoinCommand) Type() CommandType         { return CommandJoin }
func (StartCommand) Type() CommandType        { return CommandStart }
func (StartTradingCommand) Type() CommandType { return CommandStartTrading }
func (SubmitOrderCommand) Type() CommandType  { return CommandSubmitOrder }
func (PlayerDoneCommand) Type() CommandType   { return CommandPlayerDone }
func (ForceCloseCommand) Type() CommandType   { return CommandForceClose }
func (ProcessRoundCommand) Type() CommandType { return CommandProcessRound }
func (AdvanceRoundCommand) Type() CommandType { return CommandAdvanceRound }
func (DeadlineCommand) Type() CommandType     { return CommandDeadline }
func (DisconnectCommand) Type() CommandType   { return CommandDisconnect }

func (c JoinCommand) Issuer() string         { return c.PlayerID }
func (c StartCommand) Issuer() string        { return c.PlayerID }
func (c StartTradingCommand) Issuer() string { return c.PlayerID }
func (c SubmitOrderCommand) Issuer() string  { return c.PlayerID }
func (c PlayerDoneCommand) Issuer() string   { return c.PlayerID }
func (c ForceCloseCommand) Issuer() string   { return c.PlayerID }
func (c ProcessRoundCommand) Issuer() string { return c.PlayerID }
func (c AdvanceRoundCommand) Issuer() string { return c.PlayerID }
func (DeadlineCommand) Issuer() string       { return "" }
func (c DisconnectCommand) Issuer() string   { return c.PlayerID }
