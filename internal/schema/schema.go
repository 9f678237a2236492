package schema

// SchemaVersion is the current audit event schema version.
const SchemaVersion uint16 = 1

// EventType defines the category of an audit event.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventDiamondCut
	EventQueueTransaction
	EventExecuteTransaction
	EventCancelTransaction
	EventRoleGranted
	EventRoleRevoked
	EventParamSet
)

// MaxEventType is the largest defined event type.
const MaxEventType = EventParamSet

func (t EventType) String() string {
	switch t {
	case EventDiamondCut:
		return "DiamondCut"
	case EventQueueTransaction:
		return "QueueTransaction"
	case EventExecuteTransaction:
		return "ExecuteTransaction"
	case EventCancelTransaction:
		return "CancelTransaction"
	case EventRoleGranted:
		return "RoleGranted"
	case EventRoleRevoked:
		return "RoleRevoked"
	case EventParamSet:
		return "ParamSet"
	default:
		return "Unknown"
	}
}

// EventHeader is the common metadata attached to every audit event.
type EventHeader struct {
	Type      EventType
	Version   uint16
	Seq       uint64
	Block     uint64
	Timestamp int64
	Emitter   [20]byte
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, seq, block uint64, timestamp int64, emitter [20]byte) EventHeader {
	return EventHeader{
		Type:      eventType,
		Version:   SchemaVersion,
		Seq:       seq,
		Block:     block,
		Timestamp: timestamp,
		Emitter:   emitter,
	}
}
