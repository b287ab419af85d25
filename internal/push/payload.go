package push

import (
	"encoding/json"
)

// Payload is the notification shown by the service worker. Extra fields are
// serialized next to title and body.
type Payload struct {
	Title string
	Body  string
	Extra map[string]any
}

func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["title"] = p.Title
	out["body"] = p.Body
	return json.Marshal(out)
}

// AlertMessage is the single-line form relayed to the alerting service.
// It carries the message body to a third party.
func (p Payload) AlertMessage() string {
	return p.Title + ": " + p.Body
}
