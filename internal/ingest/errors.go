// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package ingest

import "errors"

var (
	// ErrAllSinksFailed reports that neither store accepted a record and
	// the failure spool could not hold it either.
	ErrAllSinksFailed = errors.New("all sinks failed")

	// ErrBridgeAlreadyStarted reports a duplicate Bridge.Start call.
	ErrBridgeAlreadyStarted = errors.New("bridge already started")

	// ErrBridgeFatal reports an unrecoverable bus failure that terminated
	// the bridge loop.
	ErrBridgeFatal = errors.New("bridge bus failure")

	// ErrConsumerClosed reports that the consumer's subscription channel
	// closed underneath it.
	ErrConsumerClosed = errors.New("consumer subscription closed")
)
