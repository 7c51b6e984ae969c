package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/db"
	"github.com/cgplatform/dbwriter/pkg/models"
)

func testPolicy() config.EventsPolicyConfig {
	return config.EventsPolicyConfig{
		RouterOfflineSec: 300,
		StaleRegisterSec: 900,
		CheckIntervalSec: 30,
	}
}

func TestOfflineThenOnline(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := db.NewMockStore(ctrl)
	tracker := New(testPolicy(), store, logrus.NewEntry(logrus.New()))

	t0 := time.Now()
	key := EntityKey{RouterSN: "SN-1", EquipType: "pcc", PanelID: 1}

	// First sighting is silently online.
	assert.Nil(t, tracker.Touch(key, t0))

	var offline *models.Event

	store.EXPECT().InsertEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev *models.Event) error {
			offline = ev
			return nil
		})

	// 301 s of silence: exactly one offline event.
	tracker.SetClock(func() time.Time { return t0.Add(301 * time.Second) })
	tracker.scan(context.Background())
	tracker.scan(context.Background())

	require.NotNil(t, offline)
	assert.Equal(t, models.EventRouterOffline, offline.Type)
	assert.Equal(t, "SN-1", offline.RouterSN)
	require.NotNil(t, offline.EquipType)
	assert.Equal(t, "pcc", *offline.EquipType)

	// Traffic resumes: one online event, returned to the caller.
	online := tracker.Touch(key, t0.Add(302*time.Second))
	require.NotNil(t, online)
	assert.Equal(t, models.EventRouterOnline, online.Type)

	// Still online: no further transition.
	assert.Nil(t, tracker.Touch(key, t0.Add(303*time.Second)))
}

func TestActiveRouterStaysOnline(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := db.NewMockStore(ctrl)
	tracker := New(testPolicy(), store, logrus.NewEntry(logrus.New()))

	t0 := time.Now()
	key := EntityKey{RouterSN: "SN-1"}

	tracker.Touch(key, t0)
	tracker.Touch(key, t0.Add(250*time.Second))

	// 299 s after the last touch: still online, no events expected.
	tracker.SetClock(func() time.Time { return t0.Add(549 * time.Second) })
	tracker.scan(context.Background())
}

func TestStaleRegisterOncePerInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := db.NewMockStore(ctrl)
	tracker := New(testPolicy(), store, logrus.NewEntry(logrus.New()))

	t0 := time.Now()
	key := models.StateKey{RouterSN: "SN-1", EquipType: "pcc", PanelID: 1, Addr: 40034}

	tracker.Touch(EntityKey{RouterSN: "SN-1", EquipType: "pcc", PanelID: 1}, t0)
	tracker.TouchRegister(key, t0)

	var staleEvents []models.Event

	store.EXPECT().InsertEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev *models.Event) error {
			if ev.Type == models.EventStaleRegister {
				staleEvents = append(staleEvents, *ev)
			}
			return nil
		}).AnyTimes()

	// Keep the router itself alive so only stale events fire.
	tracker.Touch(EntityKey{RouterSN: "SN-1", EquipType: "pcc", PanelID: 1}, t0.Add(901*time.Second))

	tracker.SetClock(func() time.Time { return t0.Add(901 * time.Second) })
	tracker.scan(context.Background())
	tracker.scan(context.Background())

	require.Len(t, staleEvents, 1, "one stale event per interval")
	assert.Equal(t, 40034, staleEvents[0].Payload["addr"])

	// A second stale interval elapses: one more event.
	tracker.SetClock(func() time.Time { return t0.Add(1802 * time.Second) })
	tracker.scan(context.Background())
	assert.Len(t, staleEvents, 2)

	// A fresh sample clears the stale latch.
	tracker.TouchRegister(key, t0.Add(1803*time.Second))
	tracker.scan(context.Background())
	assert.Len(t, staleEvents, 2)
}
