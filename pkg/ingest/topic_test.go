package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		want    Route
		wantErr bool
	}{
		{
			name:  "gps topic",
			topic: "cg/v1/telemetry/SN/ROUTER-42",
			want:  Route{Kind: RouteGPS, RouterSN: "ROUTER-42"},
		},
		{
			name:  "decoded topic",
			topic: "cg/v1/decoded/SN/ROUTER-42/pcc/3",
			want:  Route{Kind: RouteDecoded, RouterSN: "ROUTER-42", EquipType: "pcc", PanelID: 3},
		},
		{
			name:    "wrong prefix",
			topic:   "cg/v2/telemetry/SN/ROUTER-42",
			wantErr: true,
		},
		{
			name:    "missing serial",
			topic:   "cg/v1/telemetry/SN/",
			wantErr: true,
		},
		{
			name:    "non-numeric panel",
			topic:   "cg/v1/decoded/SN/ROUTER-42/pcc/abc",
			wantErr: true,
		},
		{
			name:    "too few segments",
			topic:   "cg/v1/telemetry",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTopic(tt.topic)
			if tt.wantErr {
				require.ErrorIs(t, err, errTopicMismatch)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
