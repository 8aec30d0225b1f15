package command

import "errors"

// ErrUnknownCommand is returned by Lookup when a name has no entry.
//
//	if errors.Is(err, command.ErrUnknownCommand) {
//	    // log and drop the message
//	}
var ErrUnknownCommand = errors.New("command: unknown command")
