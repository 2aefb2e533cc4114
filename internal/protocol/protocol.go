// Package protocol is the wire format spoken with game clients: JSON
// envelopes of the form {"type": ..., "payload": {...}}.
package protocol

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/nathanyu/trading-game/internal/domain"
)

// Outbound message types.
const (
	TypeGameUpdate = "GAME_UPDATE"
	TypeError      = "ERROR"
)

// Envelope is the wire format of every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is sent to the originator of a rejected command.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type joinPayload struct {
	PlayerID   string `json:"playerId" validate:"required,max=64"`
	PlayerName string `json:"playerName" validate:"required,max=64"`
	IsMonitor  bool   `json:"isMonitor"`
}

type startPayload struct {
	PlayerID  string `json:"playerId" validate:"required"`
	WithSetup bool   `json:"withSetup"`
}

type playerPayload struct {
	PlayerID string `json:"playerId" validate:"required"`
}

type orderPayload struct {
	PlayerID string `json:"playerId" validate:"required"`
	Stock    string `json:"stock" validate:"max=16"`
	Side     string `json:"side" validate:"oneof=BUY SELL"`
	Price    int64  `json:"price" validate:"gt=0,lte=1000000000"`
	Quantity int64  `json:"quantity" validate:"gt=0,lte=1000000000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses one inbound message into a command. Malformed or incomplete
// messages are validation errors. Both the short command names and the
// client's event names are accepted.
func Decode(data []byte) (domain.Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domain.Invalid("malformed message: %v", err)
	}

	switch strings.ToUpper(env.Type) {
	case "JOIN", "PLAYER_JOIN":
		var p joinPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return domain.JoinCommand{PlayerID: p.PlayerID, PlayerName: p.PlayerName, IsMonitor: p.IsMonitor}, nil

	case "START", "GAME_START":
		var p startPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return domain.StartCommand{PlayerID: p.PlayerID, WithSetup: p.WithSetup}, nil

	case "START_TRADING":
		var p playerPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return domain.StartTradingCommand{PlayerID: p.PlayerID}, nil

	case "SUBMIT_ORDER", "ORDER_SUBMIT":
		return decodeOrder(env)

	case "PLAYER_DONE":
		var p playerPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return domain.PlayerDoneCommand{PlayerID: p.PlayerID}, nil

	case "FORCE_CLOSE", "FORCE_CLOSE_ORDERS":
		var p playerPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return domain.ForceCloseCommand{PlayerID: p.PlayerID}, nil

	case "PROCESS_ROUND", "ROUND_PROCESS":
		var p playerPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return domain.ProcessRoundCommand{PlayerID: p.PlayerID}, nil

	case "ADVANCE_ROUND", "NEXT_ROUND":
		var p playerPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return domain.AdvanceRoundCommand{PlayerID: p.PlayerID}, nil

	case "":
		return nil, domain.Invalid("message type is required")
	default:
		return nil, domain.Invalid("unknown message type %q", env.Type)
	}
}

// decodeOrder accepts the side under "side" or, as clients send it, "type".
func decodeOrder(env Envelope) (domain.Command, error) {
	var raw struct {
		orderPayload
		Type string `json:"type"`
	}
	if err := unmarshalPayload(env, &raw); err != nil {
		return nil, err
	}
	p := raw.orderPayload
	if p.Side == "" {
		p.Side = raw.Type
	}
	p.Side = strings.ToUpper(p.Side)
	if err := check(env.Type, &p); err != nil {
		return nil, err
	}
	return domain.SubmitOrderCommand{
		PlayerID: p.PlayerID,
		Stock:    p.Stock,
		Side:     domain.Side(p.Side),
		Price:    p.Price,
		Quantity: p.Quantity,
	}, nil
}

func decodePayload(env Envelope, dst any) error {
	if err := unmarshalPayload(env, dst); err != nil {
		return err
	}
	return check(env.Type, dst)
}

func unmarshalPayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return domain.Invalid("%s: payload is required", env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return domain.Invalid("%s: malformed payload: %v", env.Type, err)
	}
	return nil
}

func check(msgType string, payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.Invalid("%s: %v", msgType, err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return domain.Invalid("%s: %s is required", msgType, fe.Field())
	case "gt":
		return domain.Invalid("%s: %s must be a positive integer", msgType, fe.Field())
	case "lte":
		return domain.Invalid("%s: %s must be at most %s", msgType, fe.Field(), fe.Param())
	case "oneof":
		return domain.Invalid("%s: %s must be one of %s", msgType, fe.Field(), fe.Param())
	default:
		return domain.Invalid("%s: %s failed %s=%s", msgType, fe.Field(), fe.Tag(), fe.Param())
	}
}

// EncodeUpdate wraps a snapshot in a GAME_UPDATE message.
func EncodeUpdate(snap domain.Snapshot) ([]byte, error) {
	return encode(TypeGameUpdate, snap)
}

// EncodeError wraps err in an ERROR message.
func EncodeError(err error) ([]byte, error) {
	return encode(TypeError, ErrorPayload{
		Kind:    domain.KindOf(err),
		Message: err.Error(),
	})
}

func encode(msgType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", msgType)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: body})
}
