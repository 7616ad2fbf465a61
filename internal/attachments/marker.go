package attachments

import (
	"encoding/json"
	"strings"

	"chathub/pkg/types"
)

// MarkerPrefix starts every message body that carries a file reference.
const MarkerPrefix = "[file]"

// EncodeMarker renders ref as a self-describing message body.
func EncodeMarker(ref types.FileRef) string {
	data, _ := json.Marshal(ref)
	return MarkerPrefix + string(data)
}

// DecodeMarker extracts the file reference from body, if it is a file marker.
func DecodeMarker(body string) (types.FileRef, bool) {
	rest, ok := strings.CutPrefix(body, MarkerPrefix)
	if !ok {
		return types.FileRef{}, false
	}
	var ref types.FileRef
	if err := json.Unmarshal([]byte(rest), &ref); err != nil || ref.FileID == "" {
		return types.FileRef{}, false
	}
	return ref, true
}
