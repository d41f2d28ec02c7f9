package slogx

import (
	"fmt"
	"log/slog"
	"reflect"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
//
// Parameters:
//   - err: The error to be converted into a slog.Attr.
//
// Returns:
//   - slog.Attr: An attribute with the key "error" and the error's message as the value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
//
// Parameters:
//   - key: A string representing the key for the attribute.
//   - value: An object that implements the fmt.Stringer interface.
//
// Returns:
//   - slog.Attr: An attribute containing the key and the string representation of the value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

const (
	// KeyLoggerName is the key for the logger name.
	KeyLoggerName = "logger"
	// KeySubscriptionID is the key for the id of a subscribed handler.
	KeySubscriptionID = "subscription_id"
	// KeyMessageType is the key for the Go type of a published message.
	KeyMessageType = "message_type"
)

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// SubscriptionID creates a slog.Attr for a subscription id.
func SubscriptionID(id string) slog.Attr {
	return slog.String(KeySubscriptionID, id)
}

// MessageType creates a slog.Attr naming the type M.
func MessageType[M any]() slog.Attr {
	return slog.String(KeyMessageType, reflect.TypeFor[M]().String())
}
