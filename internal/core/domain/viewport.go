package domain

// ViewportPhase is the state of a viewport controller.
type ViewportPhase int

const (
	ViewportIdle ViewportPhase = iota
	ViewportLocating
	ViewportCentered
	ViewportUserInteracting
)

func (p ViewportPhase) String() string {
	switch p {
	case ViewportLocating:
		return "locating"
	case ViewportCentered:
		return "centered"
	case ViewportUserInteracting:
		return "user_interacting"
	default:
		return "idle"
	}
}

// MarshalText encodes the phase by name.
func (p ViewportPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Viewport is a map center and zoom level.
type Viewport struct {
	Center GeoPoint `json:"center"`
	Zoom   int      `json:"zoom"`
}

// ViewportState is the controller-owned view of the map.
type ViewportState struct {
	Phase                    ViewportPhase `json:"phase"`
	Center                   GeoPoint      `json:"center"`
	Zoom                     int           `json:"zoom"`
	UserIsInteracting        bool          `json:"user_is_interacting"`
	LastProgrammaticUpdateID uint64        `json:"last_programmatic_update_id"`
}
