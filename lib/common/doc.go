// Package common holds what the command line tools share with the libraries:
// the engine configuration and the logger factory behind the named dragonboat
// loggers the engines write to.
package common
