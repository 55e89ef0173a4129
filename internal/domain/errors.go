package domain

import "errors"

var (
	ErrorUnknownDriverName = errors.New("provided store driver name not found")
	ErrorNoTablesSpecified = errors.New("no tables specified for this worker")
)

var (
	ErrorTableAlreadyRegistered   = errors.New("table with provided name already registered")
	ErrorTooLateForRegistration   = errors.New("too late to register tables, rebalance already observed")
	ErrorUnknownChannel           = errors.New("no channel registered for provided topic")
	ErrorChannelAlreadyRegistered = errors.New("channel for provided topic already registered")
)
