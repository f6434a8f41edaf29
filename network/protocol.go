package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Inbound action ids.
const (
	MsgTypeHeartbeat  = 1
	MsgTypeConnect    = 2
	MsgTypeDisconnect = 3
	MsgTypeJoinRoom   = 101
	MsgTypeLeaveRoom  = 102
	MsgTypeCreateRoom = 103
	MsgTypeListRooms  = 104
	MsgTypeMessage    = 105
	MsgTypeListUsers  = 106
	MsgTypeReady      = 201
	MsgTypeStart      = 202
	MsgTypeTurn       = 203
	MsgTypePick       = 204
)

// Outbound event ids.
const (
	MsgTypeClientID     = 301
	MsgTypeClientJoined = 302
	MsgTypeClientLeft   = 303
	MsgTypeResetMembers = 304
	MsgTypePhase        = 305
	MsgTypeReadyStatus  = 306
	MsgTypeResetReady   = 307
	MsgTypeTurnStatus   = 308
	MsgTypeResetTurn    = 309
	MsgTypeTimerTick    = 310
	MsgTypePoints       = 311
	MsgTypeRoomList     = 312
	MsgTypeGameEvent    = 313
	MsgTypeChat         = 314
	MsgTypeDisconnected = 315
	MsgTypeUserList     = 316
)

// ServerID is the sender id of server-generated messages.
const ServerID int64 = -1

// TimerKind identifies which countdown a TimerTick refers to.
type TimerKind string

const (
	TimerReady TimerKind = "READY"
	TimerRound TimerKind = "ROUND"
	TimerTurn  TimerKind = "TURN"
)

// TimerCleared is the tick value sent when a countdown is cancelled.
const TimerCleared = -1

// Payload is anything that travels in a Packet.
type Payload interface {
	MsgID() uint16
}

// --- outbound events ---

type ClientID struct {
	ClientID int64  `json:"client_id"`
	Name     string `json:"name"`
}

type ClientJoined struct {
	ClientID int64  `json:"client_id"`
	Name     string `json:"name"`
	Room     string `json:"room"`
	Quiet    bool   `json:"quiet"`
}

type ClientLeft struct {
	ClientID int64  `json:"client_id"`
	Name     string `json:"name"`
	Room     string `json:"room"`
}

// ResetMembers tells a client to clear its local member list.
type ResetMembers struct {
	Room string `json:"room"`
}

type PhaseChanged struct {
	Phase string `json:"phase"`
}

type ReadyStatus struct {
	ClientID int64 `json:"client_id"`
	Ready    bool  `json:"ready"`
	Quiet    bool  `json:"quiet"`
}

type ResetReady struct{}

type TurnStatus struct {
	ClientID int64 `json:"client_id"`
	TookTurn bool  `json:"took_turn"`
	Quiet    bool  `json:"quiet"`
}

type ResetTurn struct{}

type TimerTick struct {
	Kind    TimerKind `json:"kind"`
	Seconds int       `json:"seconds"`
}

type PointsUpdate struct {
	ClientID int64 `json:"client_id"`
	Points   int   `json:"points"`
}

type RoomList struct {
	Rooms []string `json:"rooms"`
	Query string   `json:"query"`
}

type GameEvent struct {
	Text string `json:"text"`
}

// Chat carries a relayed room message, or a private server notice when
// SenderID is ServerID.
type Chat struct {
	SenderID int64  `json:"sender_id"`
	Text     string `json:"text"`
}

type Disconnected struct {
	ClientID int64 `json:"client_id"`
}

// UserList names the members of a room in join order.
type UserList struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

func (ClientID) MsgID() uint16     { return MsgTypeClientID }
func (ClientJoined) MsgID() uint16 { return MsgTypeClientJoined }
func (ClientLeft) MsgID() uint16   { return MsgTypeClientLeft }
func (ResetMembers) MsgID() uint16 { return MsgTypeResetMembers }
func (PhaseChanged) MsgID() uint16 { return MsgTypePhase }
func (ReadyStatus) MsgID() uint16  { return MsgTypeReadyStatus }
func (ResetReady) MsgID() uint16   { return MsgTypeResetReady }
func (TurnStatus) MsgID() uint16   { return MsgTypeTurnStatus }
func (ResetTurn) MsgID() uint16    { return MsgTypeResetTurn }
func (TimerTick) MsgID() uint16    { return MsgTypeTimerTick }
func (PointsUpdate) MsgID() uint16 { return MsgTypePoints }
func (RoomList) MsgID() uint16     { return MsgTypeRoomList }
func (GameEvent) MsgID() uint16    { return MsgTypeGameEvent }
func (Chat) MsgID() uint16         { return MsgTypeChat }
func (Disconnected) MsgID() uint16 { return MsgTypeDisconnected }
func (UserList) MsgID() uint16     { return MsgTypeUserList }

// --- inbound actions ---

type Heartbeat struct{}

type Connect struct {
	Name string `json:"name"`
}

type Disconnect struct{}

type JoinRoom struct {
	Name string `json:"name"`
}

type LeaveRoom struct{}

type CreateRoom struct {
	Name string `json:"name"`
}

type ListRooms struct {
	Query string `json:"query"`
}

type Message struct {
	Text string `json:"text"`
}

type ListUsers struct{}

type Ready struct{}

type Start struct{}

type Turn struct {
	Payload string `json:"payload,omitempty"`
}

type Pick struct {
	Choice string `json:"choice"`
}

func (Heartbeat) MsgID() uint16  { return MsgTypeHeartbeat }
func (Connect) MsgID() uint16    { return MsgTypeConnect }
func (Disconnect) MsgID() uint16 { return MsgTypeDisconnect }
func (JoinRoom) MsgID() uint16   { return MsgTypeJoinRoom }
func (LeaveRoom) MsgID() uint16  { return MsgTypeLeaveRoom }
func (CreateRoom) MsgID() uint16 { return MsgTypeCreateRoom }
func (ListRooms) MsgID() uint16  { return MsgTypeListRooms }
func (Message) MsgID() uint16    { return MsgTypeMessage }
func (ListUsers) MsgID() uint16  { return MsgTypeListUsers }
func (Ready) MsgID() uint16      { return MsgTypeReady }
func (Start) MsgID() uint16      { return MsgTypeStart }
func (Turn) MsgID() uint16       { return MsgTypeTurn }
func (Pick) MsgID() uint16       { return MsgTypePick }

var ErrUnknownMessage = errors.New("unknown message type")

// Encode serializes a payload body. The message id travels in the packet header.
func Encode(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeAction turns an inbound packet into its typed action.
func DecodeAction(packet *Packet) (Payload, error) {
	var action Payload
	switch packet.MsgID {
	case MsgTypeHeartbeat:
		return Heartbeat{}, nil
	case MsgTypeDisconnect:
		return Disconnect{}, nil
	case MsgTypeLeaveRoom:
		return LeaveRoom{}, nil
	case MsgTypeListUsers:
		return ListUsers{}, nil
	case MsgTypeReady:
		return Ready{}, nil
	case MsgTypeStart:
		return Start{}, nil
	case MsgTypeConnect:
		action = &Connect{}
	case MsgTypeJoinRoom:
		action = &JoinRoom{}
	case MsgTypeCreateRoom:
		action = &CreateRoom{}
	case MsgTypeListRooms:
		action = &ListRooms{}
	case MsgTypeMessage:
		action = &Message{}
	case MsgTypeTurn:
		action = &Turn{}
	case MsgTypePick:
		action = &Pick{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, packet.MsgID)
	}

	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, action); err != nil {
			return nil, fmt.Errorf("decode message %d: %w", packet.MsgID, err)
		}
	}

	// Hand back values so callers can switch on the plain struct types.
	switch a := action.(type) {
	case *Connect:
		return *a, nil
	case *JoinRoom:
		return *a, nil
	case *CreateRoom:
		return *a, nil
	case *ListRooms:
		return *a, nil
	case *Message:
		return *a, nil
	case *Turn:
		return *a, nil
	case *Pick:
		return *a, nil
	}
	return action, nil
}

// DecodeEvent turns an outbound packet back into its typed event. Clients
// written in Go and tests use it.
func DecodeEvent(msgID uint16, data []byte) (Payload, error) {
	var event Payload
	switch msgID {
	case MsgTypeClientID:
		event = &ClientID{}
	case MsgTypeClientJoined:
		event = &ClientJoined{}
	case MsgTypeClientLeft:
		event = &ClientLeft{}
	case MsgTypeResetMembers:
		event = &ResetMembers{}
	case MsgTypePhase:
		event = &PhaseChanged{}
	case MsgTypeReadyStatus:
		event = &ReadyStatus{}
	case MsgTypeResetReady:
		event = &ResetReady{}
	case MsgTypeTurnStatus:
		event = &TurnStatus{}
	case MsgTypeResetTurn:
		event = &ResetTurn{}
	case MsgTypeTimerTick:
		event = &TimerTick{}
	case MsgTypePoints:
		event = &PointsUpdate{}
	case MsgTypeRoomList:
		event = &RoomList{}
	case MsgTypeGameEvent:
		event = &GameEvent{}
	case MsgTypeChat:
		event = &Chat{}
	case MsgTypeDisconnected:
		event = &Disconnected{}
	case MsgTypeUserList:
		event = &UserList{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, msgID)
	}
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode event %d: %w", msgID, err)
	}
	return reflect.ValueOf(event).Elem().Interface().(Payload), nil
}
