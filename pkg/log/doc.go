/*
Package log provides structured logging for meridian using zerolog.

Every component constructs its own child logger via WithComponent at
construction time and carries it as a field rather than reaching for
the package-level Logger directly. WithHost, WithKeyspace, and
WithRequestID each take a logger and return a copy carrying one more
field, so callers chain them onto a component logger to build up the
per-request/per-host context a single log line needs.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	reqLog := log.WithRequestID(log.WithComponent("handler"), requestID)
	reqLog.Debug().Msg("dispatched")
	log.WithHost(reqLog, host.Address.String()).Debug().Msg("trying host")
*/
package log
