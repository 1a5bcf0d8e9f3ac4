// Package logtest provides a no-op core.ILogger for use in unit tests that
// don't care about log output.
package logtest

import "exchangeconnector/internal/core"

type nop struct{}

// NewNop returns a core.ILogger that discards everything.
func NewNop() core.ILogger { return nop{} }

func (nop) Debug(string, ...interface{})                       {}
func (nop) Info(string, ...interface{})                        {}
func (nop) Warn(string, ...interface{})                        {}
func (nop) Error(string, ...interface{})                       {}
func (nop) Fatal(string, ...interface{})                       {}
func (n nop) WithField(string, interface{}) core.ILogger       { return n }
func (n nop) WithFields(map[string]interface{}) core.ILogger   { return n }
