package model

// Connection is an undirected edge between two devices. Several connections
// may share a BusGroup when they form one physical busbar.
type Connection struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	To       string `json:"to"`
	BusGroup string `json:"busGroup,omitempty"`

	// RatingMVA is the apparent-power limit; zero means unrated.
	RatingMVA float64 `json:"ratingMVA,omitempty"`
}

// Other returns the endpoint opposite to deviceID, or "" if deviceID is not
// an endpoint of c.
func (c Connection) Other(deviceID string) string {
	switch deviceID {
	case c.From:
		return c.To
	case c.To:
		return c.From
	default:
		return ""
	}
}

// InterlockRule blocks driving Device into Target while ConditionDevice is in
// ConditionState.
type InterlockRule struct {
	ID              string      `json:"id"`
	Device          string      `json:"device"`
	Target          SwitchState `json:"target"`
	ConditionDevice string      `json:"conditionDevice"`
	ConditionState  SwitchState `json:"conditionState"`
}
