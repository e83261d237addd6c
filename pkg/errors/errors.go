package errors

import "fmt"

type Underflow struct {
	MessageName string
	MsgSize     int
	MinimumSize int
}

func (e *Underflow) Error() string {
	return fmt.Sprintf("Message parsing underflowed (type=%s), provided %d bytes, needed at least %d", e.MessageName, e.MsgSize, e.MinimumSize)
}

// Overrun is returned when a read or write would step past the end of a
// fixed-capacity buffer. Nothing is written when this happens.
type Overrun struct {
	Operation string
	Offset    int
	Size      int
	Capacity  int
}

func (e *Overrun) Error() string {
	return fmt.Sprintf("Buffer overrun on %s: offset=%d size=%d capacity=%d", e.Operation, e.Offset, e.Size, e.Capacity)
}

type InvalidEnumValue struct {
	EnumName string
	IntValue uint8
}

func (e *InvalidEnumValue) Error() string {
	return fmt.Sprintf("Invalid enum value=%d (enum: %s)", e.IntValue, e.EnumName)
}

type InvalidHeader struct {
	ExpectedProtocolId uint32
	ActualProtocolId   uint32
}

func (e *InvalidHeader) Error() string {
	return fmt.Sprintf("Invalid header: expected ProtocolId=0x%08X, got ProtocolId=0x%08X", e.ExpectedProtocolId, e.ActualProtocolId)
}

type InvalidPadding struct {
	MessageName string
	DataLen     int
	Required    int
}

func (e *InvalidPadding) Error() string {
	return fmt.Sprintf("Message %s must be padded to %d bytes, got %d", e.MessageName, e.Required, e.DataLen)
}

type AuthenticationFailed struct {
	MessageName string
}

func (e *AuthenticationFailed) Error() string {
	return fmt.Sprintf("Salt mismatch on %s", e.MessageName)
}

type StaleSequence struct {
	Sequence uint16
	Latest   uint16
}

func (e *StaleSequence) Error() string {
	return fmt.Sprintf("Sequence %d is not newer than %d", e.Sequence, e.Latest)
}

// Rejected is surfaced to a client when the server refuses its connection.
type Rejected struct {
	Reason string
}

func (e *Rejected) Error() string {
	return fmt.Sprintf("Connection rejected: %s", e.Reason)
}

type NameCollision struct {
	CollisionContext string
	Name             string
}

func (e *NameCollision) Error() string {
	return fmt.Sprintf("Name collision for name '%s' in context '%s'", e.Name, e.CollisionContext)
}
