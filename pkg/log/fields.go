package log

const (
	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Service
	FieldService = "service"

	// Chat
	FieldRoomID      = "room_id"
	FieldMessageID   = "message_id"
	FieldMessageType = "message_type"
	FieldState       = "state"

	// Broker
	FieldDriver      = "driver"
	FieldDestination = "destination"
	FieldGeneration  = "generation"
	FieldDelay       = "delay"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
