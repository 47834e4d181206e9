package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMappersAreTotal(t *testing.T) {
	inputs := []string{"", "   ", "Deluxe Suite", "???", "null", "été", "51 weeks please"}
	for _, in := range inputs {
		assert.Contains(t, Statuses, MapStatus(in), "status for %q", in)
		assert.True(t, ValidRoom(string(MapRoom(in))), "room for %q", in)
		assert.True(t, ValidDuration(string(MapDuration(in))), "duration for %q", in)
	}
}

func TestUnknownRoomFallsBackToSilver(t *testing.T) {
	assert.Equal(t, RoomSilver, MapRoom("Deluxe Suite"))
}

func TestMappingIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, StatusConverted, MapStatus("  CONVERTED "))
	assert.Equal(t, StatusHighInterest, MapStatus("High-Interest"))
	assert.Equal(t, StatusAwaitingOutreach, MapStatus("awaiting_outreach"))
	assert.Equal(t, RoomRhodiumPlus, MapRoom("Rhodium Plus"))
	assert.Equal(t, RoomGold, MapRoom("GOLD"))
	assert.Equal(t, Duration45Weeks, MapDuration("45 Weeks"))
	assert.Equal(t, DurationShortStay, MapDuration("short-stay"))
}

func TestPotentialRevenue(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		room     Room
		duration Duration
		override int64
		want     int64
	}{
		{"not converted ignores override", StatusHighInterest, RoomGold, Duration51Weeks, 9000, 0},
		{"converted uses pricing table", StatusConverted, RoomGold, Duration51Weeks, 0, 200 * 51},
		{"converted short stay", StatusConverted, RoomRhodiumPlus, DurationShortStay, 0, 265 * 4},
		{"override wins", StatusConverted, RoomSilver, Duration45Weeks, 7500, 7500},
		{"unknown room priced as default", StatusConverted, Room("penthouse"), Duration45Weeks, 0, 180 * 45},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PotentialRevenue(tc.status, tc.room, tc.duration, tc.override))
		})
	}
}

func TestSourceMapper(t *testing.T) {
	mapper := NewSourceMapper([]string{"website", "google_ads", "social_media", "walk_in", "other"})

	assert.Equal(t, "website", mapper.Map("Website"))
	assert.Equal(t, "google_ads", mapper.Map("Google Ads"))
	assert.Equal(t, "google_ads", mapper.Map("google"))
	assert.Equal(t, "social_media", mapper.Map("Instagram"))
	assert.Equal(t, "social_media", mapper.Map("Facebook Campaign"))
	assert.Equal(t, "walk_in", mapper.Map("walk-in"))
	assert.Equal(t, "other", mapper.Map("carrier pigeon"))
	assert.Equal(t, "other", mapper.Map(""))
}

func TestSourceMapperFallbackWithoutOther(t *testing.T) {
	mapper := NewSourceMapper([]string{"website", "referral"})
	assert.Equal(t, "referral", mapper.Default())
	assert.Equal(t, "referral", mapper.Map("billboard"))

	// aliases only resolve to active slugs
	assert.Equal(t, "referral", mapper.Map("instagram"))

	empty := NewSourceMapper(nil)
	assert.Equal(t, DefaultSource, empty.Map("anything"))
}
