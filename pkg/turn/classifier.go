package turn

import "strings"

// TransientMarkers are matched case-sensitively against failure text. Changing this list changes
// retry behavior for every client, so treat it as a versioned contract.
var TransientMarkers = []string{
	"starting up",
	"503",
	"Network error",
	"Cannot connect",
	"No response from server",
}

type Classification struct {
	Transient bool
}

// Classify decides whether a failed attempt is worth retrying.
func Classify(errText string) Classification {
	for _, marker := range TransientMarkers {
		if strings.Contains(errText, marker) {
			return Classification{Transient: true}
		}
	}
	return Classification{Transient: false}
}

func IsTransient(errText string) bool {
	return Classify(errText).Transient
}
