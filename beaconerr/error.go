// Package beaconerr defines the error taxonomy shared across the
// library. The core packages return an *Error so callers can branch on
// Kind without string matching; the logging package and the paho
// transport adapter return plain errors.
package beaconerr

import "fmt"

// Kind enumerates the error categories the library can return.
type Kind string

const (
	InvalidParam         Kind = "invalid_param"
	InvalidConfiguration Kind = "invalid_configuration"

	OutOfMemory Kind = "out_of_memory"
	Timeout     Kind = "timeout"
	NotFound    Kind = "not_found"

	InterfaceNotFound        Kind = "interface_not_found"
	InterfaceAlreadyPresent  Kind = "interface_already_present"
	InterfaceConflicting     Kind = "interface_conflicting"
	InterfaceInvalidVersion  Kind = "interface_invalid_version"

	MappingNotInInterface               Kind = "mapping_not_in_interface"
	MappingPathMismatch                 Kind = "mapping_path_mismatch"
	MappingValueIncompatible            Kind = "mapping_value_incompatible"
	MappingExplicitTimestampRequired    Kind = "mapping_explicit_timestamp_required"
	MappingExplicitTimestampNotSupported Kind = "mapping_explicit_timestamp_not_supported"
	MappingUnsetNotAllowed              Kind = "mapping_unset_not_allowed"

	BsonSerializerError      Kind = "bson_serializer_error"
	BsonDeserializerError    Kind = "bson_deserializer_error"
	BsonDeserializerTypesError Kind = "bson_deserializer_types_error"
	BsonEmptyDocumentError   Kind = "bson_empty_document_error"
	BsonEmptyArrayError      Kind = "bson_empty_array_error"

	SocketError      Kind = "socket_error"
	TLSError         Kind = "tls_error"
	MqttError        Kind = "mqtt_error"
	ClientCertInvalid Kind = "client_cert_invalid"
	HTTPRequestError Kind = "http_request_error"
	JSONError        Kind = "json_error"
	MbedTLSError     Kind = "mbedtls_error"

	InternalError Kind = "internal_error"
)

// Error is the concrete error type returned by the library. It wraps
// an optional underlying cause while keeping Kind inspectable.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries an underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Is reports whether err is a library *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
