package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonProtocol ReasonCode = "protocol"
	ReasonConfig   ReasonCode = "config"
	ReasonCapacity ReasonCode = "capacity_exceeded"

	ReasonBackendUnavailable ReasonCode = "backend_unavailable"
	ReasonTranscribeTimeout  ReasonCode = "transcribe_timeout"
	ReasonTranscribeFailed   ReasonCode = "transcribe_failed"

	ReasonResource       ReasonCode = "resource"
	ReasonConnectionLost ReasonCode = "connection_lost"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonTransportSend             ReasonCode = "transport_send"
)
