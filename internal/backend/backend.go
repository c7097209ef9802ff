package backend

var radioBackend Backend

// RadioBackend returns the radio backend.
func RadioBackend() Backend {
	return radioBackend
}

// SetRadioBackend sets the given radio backend.
func SetRadioBackend(b Backend) {
	radioBackend = b
}

// Backend is the interface of a radio link backend. A backend is
// responsible for the communication with one physical radio link and
// delivers its raw byte stream in arrival order.
type Backend interface {
	DataChan() chan []byte // channel containing the received byte chunks
	Close() error          // close the radio backend
}
