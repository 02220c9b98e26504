package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with Relay's own event vocabulary. Each With*
// method returns a derived logger carrying extra context, so a
// transfer session can thread its session ID through every call site
// without repeating Str("session_id", ...) everywhere.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates the root logger for a process (server or client).
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithSession adds session_id context to the logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithCode adds the rendezvous transfer code to the logger.
func (l *Logger) WithCode(code string) *Logger {
	return &Logger{logger: l.logger.With().Str("code", code).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits the process.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// SessionRegistered logs a peer registering on the rendezvous server.
func (l *Logger) SessionRegistered(code, role, remoteIP string) {
	l.logger.Info().
		Str("code", code).
		Str("role", role).
		Str("remote_ip", remoteIP).
		Msg("peer registered")
}

// PeerJoined logs the moment both sides of a session are present.
func (l *Logger) PeerJoined(code string) {
	l.logger.Info().Str("code", code).Msg("peer joined, announcing")
}

// PAKECompleted logs a successful key exchange, never the key itself.
func (l *Logger) PAKECompleted(sessionID string, elapsed time.Duration) {
	l.logger.Info().
		Str("session_id", sessionID).
		Float64("elapsed_seconds", elapsed.Seconds()).
		Msg("PAKE key exchange completed")
}

// TransportSelected logs whether direct QUIC or relay carries a
// session, and why.
func (l *Logger) TransportSelected(sessionID, kind, reason string) {
	l.logger.Info().
		Str("session_id", sessionID).
		Str("transport", kind).
		Str("reason", reason).
		Msg("transport selected")
}

// FileOffered logs a sender's file offer.
func (l *Logger) FileOffered(sessionID string, fileCount int, totalBytes uint64) {
	l.logger.Info().
		Str("session_id", sessionID).
		Int("file_count", fileCount).
		Uint64("total_bytes", totalBytes).
		Msg("file offer sent")
}

// ChunkSent logs one chunk crossing the wire. Logged at debug since a
// transfer can span tens of thousands of chunks.
func (l *Logger) ChunkSent(sessionID string, fileIndex int, chunkIndex uint32, size int) {
	l.logger.Debug().
		Str("session_id", sessionID).
		Int("file_index", fileIndex).
		Uint32("chunk_index", chunkIndex).
		Int("chunk_size", size).
		Msg("chunk sent")
}

// ChunkVerifyFailed logs an AEAD authentication failure, which is
// always fatal to the transfer (§4.1).
func (l *Logger) ChunkVerifyFailed(sessionID string, fileIndex int, chunkIndex uint32, err error) {
	l.logger.Error().
		Str("session_id", sessionID).
		Int("file_index", fileIndex).
		Uint32("chunk_index", chunkIndex).
		Err(err).
		Msg("chunk authentication failed")
}

// TransferCompleted logs a session finishing successfully.
func (l *Logger) TransferCompleted(sessionID string, totalBytes uint64, duration time.Duration, avgThroughput float64) {
	l.logger.Info().
		Str("session_id", sessionID).
		Uint64("total_bytes", totalBytes).
		Float64("duration_seconds", duration.Seconds()).
		Float64("average_throughput_bps", avgThroughput).
		Msg("transfer completed")
}

// TransferCancelled logs a session ending via cancellation, noting
// which side cancelled.
func (l *Logger) TransferCancelled(sessionID, by, reason string) {
	l.logger.Warn().
		Str("session_id", sessionID).
		Str("cancelled_by", by).
		Str("reason", reason).
		Msg("transfer cancelled")
}

// TransferErrored logs a session ending in an error, tagged with its
// Kind so dashboards can bucket failures (§7 Error kinds).
func (l *Logger) TransferErrored(sessionID, kind string, err error) {
	l.logger.Error().
		Str("session_id", sessionID).
		Str("error_kind", kind).
		Err(err).
		Msg("transfer failed")
}

// RelayActivated logs a session falling back to the relay carrier.
func (l *Logger) RelayActivated(code string) {
	l.logger.Info().Str("code", code).Msg("relay forwarding activated")
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
