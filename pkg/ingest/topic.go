// Package ingest pkg/ingest/topic.go parses broker topics into routes.
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Route kinds.
const (
	RouteGPS     = "gps"
	RouteDecoded = "decoded"
)

var errTopicMismatch = errors.New("topic does not match a known pattern")

// Route is a parsed topic.
type Route struct {
	Kind      string
	RouterSN  string
	EquipType string
	PanelID   int
}

// ParseTopic matches the two subscribed grammars:
//
//	cg/v1/telemetry/SN/<router_sn>
//	cg/v1/decoded/SN/<router_sn>/<equip_type>/<panel_id>
func ParseTopic(topic string) (Route, error) {
	parts := strings.Split(topic, "/")

	switch {
	case len(parts) == 5 && parts[0] == "cg" && parts[1] == "v1" &&
		parts[2] == "telemetry" && parts[3] == "SN" && parts[4] != "":
		return Route{Kind: RouteGPS, RouterSN: parts[4]}, nil

	case len(parts) == 7 && parts[0] == "cg" && parts[1] == "v1" &&
		parts[2] == "decoded" && parts[3] == "SN" && parts[4] != "" && parts[5] != "":
		panelID, err := strconv.Atoi(parts[6])
		if err != nil {
			return Route{}, fmt.Errorf("%w: bad panel id %q", errTopicMismatch, parts[6])
		}

		return Route{
			Kind:      RouteDecoded,
			RouterSN:  parts[4],
			EquipType: parts[5],
			PanelID:   panelID,
		}, nil

	default:
		return Route{}, fmt.Errorf("%w: %s", errTopicMismatch, topic)
	}
}
