package jules

import "fmt"

// TransportError reports a non-2xx HTTP response. The raw body is kept so the
// API's own error message reaches the persona's error artifact verbatim.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("jules: API HTTP %d: %s", e.Status, e.Body)
}

// ProtocolError reports a success response the client cannot act on, such as
// a created session without a name.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("jules: %s", e.Message)
}

// TimeoutError reports that the poll deadline passed before the session
// reached a terminal state. LastSession holds the most recent snapshot for
// diagnostics and may be nil if no fetch ever succeeded.
type TimeoutError struct {
	SessionName string
	LastSession *Session
}

func (e *TimeoutError) Error() string {
	state := "unknown"
	if e.LastSession != nil && e.LastSession.State != "" {
		state = e.LastSession.State
	}
	return fmt.Sprintf("jules: timed out waiting for session %s (last state %s)", e.SessionName, state)
}
